// Package device provides the glove registry for Glove Core.
//
// The registry is the catalogue of every data glove known to the system.
// It tracks identity (hardware identifier, MAC address), firmware and
// hardware versions, connectivity status, and last heartbeat.
//
// # Key Types
//
//   - Device: a registered data glove
//   - Status: connectivity state (online, offline, maintenance)
//   - Repository: persistence interface with a SQLite implementation
//   - Service: registration, heartbeat and delete-guard logic
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db)
//	svc := device.NewService(repo, bindingManager, logger)
//
//	dev := &device.Device{
//	    DeviceID: "GLV-2026-0001",
//	    Name:     "Classroom Glove 1",
//	}
//	if err := svc.Register(ctx, dev); err != nil {
//	    return err
//	}
//
// Deleting a device with an active binding fails with ErrDeviceBound;
// the binding must be released first.
//
// # Thread Safety
//
// The Service holds no mutable state; concurrency control is delegated
// to SQLite. All methods are safe for concurrent use.
package device
