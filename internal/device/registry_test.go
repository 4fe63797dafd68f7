package device

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// memRepository is an in-memory Repository for tests.
type memRepository struct {
	mu      sync.Mutex
	saved   Catalogue
	saveErr error
	loadErr error
}

func newMemRepository() *memRepository {
	return &memRepository{saved: NewCatalogue()}
}

func (m *memRepository) Load(_ context.Context) (Catalogue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return Catalogue{}, m.loadErr
	}
	return cloneCatalogue(m.saved), nil
}

func (m *memRepository) Save(_ context.Context, c Catalogue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = cloneCatalogue(c)
	return nil
}

func TestRegistryAddLightConflict(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(newMemRepository())
	addr := Address{Subnet: 1, Device: 2, Channel: 3}

	if err := r.AddLight(ctx, Light{Address: addr, Name: "Kitchen"}); err != nil {
		t.Fatalf("AddLight: %v", err)
	}
	err := r.AddLight(ctx, Light{Address: addr, Name: "Kitchen 2"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestRegistryAddLightRejectsInvalidName(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(newMemRepository())
	err := r.AddLight(ctx, Light{Address: Address{1, 1, 1}, Name: ""})
	if !errors.Is(err, ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
}

func TestRegistryUpdateLightMigratesAddress(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(newMemRepository())
	oldAddr := Address{1, 1, 1}
	newAddr := Address{1, 1, 2}

	if err := r.AddLight(ctx, Light{Address: oldAddr, Name: "Hall"}); err != nil {
		t.Fatalf("AddLight: %v", err)
	}
	if err := r.UpdateLight(ctx, oldAddr, Light{Address: newAddr, Name: "Hall"}); err != nil {
		t.Fatalf("UpdateLight: %v", err)
	}
	if _, err := r.GetLight(oldAddr); !errors.Is(err, ErrNotFound) {
		t.Fatalf("old address should be gone, got %v", err)
	}
	if _, err := r.GetLight(newAddr); err != nil {
		t.Fatalf("GetLight(newAddr): %v", err)
	}
}

func TestRegistryUpdateLightConflictRollsBack(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(newMemRepository())
	a1 := Address{1, 1, 1}
	a2 := Address{1, 1, 2}

	if err := r.AddLight(ctx, Light{Address: a1, Name: "One"}); err != nil {
		t.Fatalf("AddLight a1: %v", err)
	}
	if err := r.AddLight(ctx, Light{Address: a2, Name: "Two"}); err != nil {
		t.Fatalf("AddLight a2: %v", err)
	}
	err := r.UpdateLight(ctx, a1, Light{Address: a2, Name: "One"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if _, err := r.GetLight(a1); err != nil {
		t.Fatalf("a1 should still exist after failed rename: %v", err)
	}
}

func TestRegistryEnsureCoverDoesNotOverwriteCalibration(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(newMemRepository())
	addr := Address{2, 1, 1}

	calibrated := Cover{Address: addr, Name: "Lounge", OpeningTimeUpS: 18.5, OpeningTimeDownS: 17.2}
	if err := r.AddCover(ctx, calibrated); err != nil {
		t.Fatalf("AddCover: %v", err)
	}

	defaults := Cover{Name: "Lounge", OpeningTimeUpS: 20, OpeningTimeDownS: 20}
	got, err := r.EnsureCover(ctx, addr, defaults)
	if err != nil {
		t.Fatalf("EnsureCover: %v", err)
	}
	if got.OpeningTimeUpS != 18.5 || got.OpeningTimeDownS != 17.2 {
		t.Fatalf("EnsureCover overwrote calibration: %+v", got)
	}
}

func TestRegistrySetCoverCalibrationPartial(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(newMemRepository())
	addr := Address{2, 1, 1}
	if err := r.AddCover(ctx, Cover{Address: addr, Name: "Lounge", OpeningTimeUpS: 20, OpeningTimeDownS: 20}); err != nil {
		t.Fatalf("AddCover: %v", err)
	}

	newUp := 15.0
	if err := r.SetCoverCalibration(ctx, addr, &newUp, nil); err != nil {
		t.Fatalf("SetCoverCalibration: %v", err)
	}
	c, err := r.GetCover(addr)
	if err != nil {
		t.Fatalf("GetCover: %v", err)
	}
	if c.OpeningTimeUpS != 15.0 {
		t.Fatalf("up time not updated: %+v", c)
	}
	if c.OpeningTimeDownS != 20 {
		t.Fatalf("down time should be untouched: %+v", c)
	}
}

func TestRegistryAddCoverGroupGeneratesID(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(newMemRepository())
	g := CoverGroup{Name: "Living Room Blinds", MemberAddresses: []Address{{2, 1, 1}, {2, 1, 2}}}
	if err := r.AddCoverGroup(ctx, g); err != nil {
		t.Fatalf("AddCoverGroup: %v", err)
	}
	groups := r.ListCoverGroups()
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	if groups[0].ID == "" {
		t.Fatalf("expected generated ID, got empty")
	}
}

func TestRegistryAddCoverGroupRejectsEmptyMembers(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(newMemRepository())
	err := r.AddCoverGroup(ctx, CoverGroup{Name: "Empty"})
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestRegistryCoverGroupRenamePreservesID(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(newMemRepository())
	g := CoverGroup{Name: "Blinds", MemberAddresses: []Address{{2, 1, 1}}}
	if err := r.AddCoverGroup(ctx, g); err != nil {
		t.Fatalf("AddCoverGroup: %v", err)
	}
	groups := r.ListCoverGroups()
	id := groups[0].ID

	renamed := groups[0]
	renamed.Name = "Living Room Blinds"
	if err := r.UpdateCoverGroup(ctx, renamed); err != nil {
		t.Fatalf("UpdateCoverGroup: %v", err)
	}
	got, err := r.GetCoverGroup(id)
	if err != nil {
		t.Fatalf("GetCoverGroup: %v", err)
	}
	if got.ID != id {
		t.Fatalf("ID changed on rename: got %s want %s", got.ID, id)
	}
	if got.Name != "Living Room Blinds" {
		t.Fatalf("name not updated: %+v", got)
	}
}

func TestRegistrySensorAddressAndSensorIDScoping(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(newMemRepository())
	addr := Address{3, 1, 0}

	if err := r.AddSensor(ctx, KindTemp, Sensor{Address: addr, SensorID: 1, Name: "Lounge Temp", Format: FormatFloat32LE}); err != nil {
		t.Fatalf("AddSensor channel 1: %v", err)
	}
	if err := r.AddSensor(ctx, KindTemp, Sensor{Address: addr, SensorID: 2, Name: "Lounge Temp 2", Format: FormatFloat32LE}); err != nil {
		t.Fatalf("AddSensor channel 2 should not conflict: %v", err)
	}
	if err := r.AddSensor(ctx, KindHumidity, Sensor{Address: addr, SensorID: 1, Name: "Lounge Humidity", Format: FormatUint8}); err != nil {
		t.Fatalf("AddSensor same address/sensor_id different kind should not conflict: %v", err)
	}

	err := r.AddSensor(ctx, KindTemp, Sensor{Address: addr, SensorID: 1, Name: "dup", Format: FormatFloat32LE})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict on exact duplicate, got %v", err)
	}
}

func TestRegistryAddSensorRejectsInvalidFormat(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(newMemRepository())
	err := r.AddSensor(ctx, KindTemp, Sensor{Address: Address{3, 1, 0}, Name: "Bad", Format: "bogus"})
	if !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("expected ErrInvalidFormat, got %v", err)
	}
}

func TestRegistryRefreshCachePopulatesFromRepository(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepository()
	seed := NewCatalogue()
	seed.Lights["1.1.1"] = Light{Address: Address{1, 1, 1}, Name: "Seeded"}
	repo.saved = seed

	r := NewRegistry(repo)
	if err := r.RefreshCache(ctx); err != nil {
		t.Fatalf("RefreshCache: %v", err)
	}
	if _, err := r.GetLight(Address{1, 1, 1}); err != nil {
		t.Fatalf("expected seeded light present: %v", err)
	}
}

func TestRegistryMutationRollsBackOnSaveFailure(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepository()
	r := NewRegistry(repo)
	addr := Address{1, 1, 1}

	repo.saveErr = errors.New("disk full")
	err := r.AddLight(ctx, Light{Address: addr, Name: "Hall"})
	if err == nil {
		t.Fatalf("expected error from failing repository")
	}
	if _, err := r.GetLight(addr); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cache should have rolled back, got %v", err)
	}
}
