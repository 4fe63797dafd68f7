// Package device is the typed catalogue of BusPro devices tracked by the
// bridge: lights, covers, cover groups, dry contacts, and environmental
// sensors.
//
// # Architecture
//
//	┌─────────────────────────────────────────────────────────────────────────┐
//	│                             device.Registry                              │
//	│                                                                          │
//	│  ┌──────────────────┐    ┌──────────────────┐    ┌──────────────────┐   │
//	│  │     Registry      │    │    Repository     │    │    Validation     │   │
//	│  │   (registry.go)   │───▶│  (interface only) │    │  (validation.go)  │   │
//	│  │                   │    │                   │    │                   │   │
//	│  │ • per-kind CRUD   │    │ • Load/Save of a  │    │ • name/format/    │   │
//	│  │ • in-memory cache │    │   Catalogue       │    │   address checks  │   │
//	│  │ • thread safety   │    │                   │    │                   │   │
//	│  └──────────────────┘    └──────────────────┘    └──────────────────┘   │
//	│           │                        │                                     │
//	└───────────│────────────────────────│─────────────────────────────────────┘
//	            │                        │
//	            ▼                        ▼
//	┌──────────────────────┐   ┌──────────────────────┐
//	│   internal/api (C9)  │   │  internal/store (C8)  │
//	│  • GET /snapshot      │   │  • JSON file on disk   │
//	│  • WebSocket events   │   │  • atomic write        │
//	└──────────────────────┘   └──────────────────────┘
//
// # Key Types
//
//   - Address: subnet/device/channel triple identifying a BusPro channel
//   - Light, Cover, CoverGroup, DryContact, Sensor: the typed catalogues
//   - Catalogue: the full set, as persisted through Repository
//
// # Usage
//
//	repo := store.NewDeviceRepository(st)
//	registry := device.NewRegistry(repo)
//	registry.SetLogger(log)
//
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//
//	err := registry.AddCover(ctx, device.Cover{
//	    Address: device.Address{Subnet: 1, Device: 10, Channel: 1},
//	    Name:    "Lounge Blind",
//	    OpeningTimeUpS:   18.5,
//	    OpeningTimeDownS: 17.2,
//	})
//
// # Thread Safety
//
// Registry is safe for concurrent use; all operations are protected by a
// read-write mutex. Repository implementations must also be safe for
// concurrent use.
package device
