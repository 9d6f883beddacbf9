package services

import (
	"sort"
	"sync"

	"github.com/benmeehan/vmdevice-agent/internal/models"
	"github.com/benmeehan/vmdevice-agent/internal/utils"
	cmap "github.com/orcaman/concurrent-map/v2"
)

// DeviceRegistry keeps the most recent attached and available device lists,
// keyed by vendor:product. It is what a tray menu or status line reads.
// Each list is swapped as a whole under its own lock.
type DeviceRegistry struct {
	lists map[models.ListKind]cmap.ConcurrentMap[models.DeviceID, models.DeviceDescriptor]
	locks map[models.ListKind]*sync.RWMutex
}

// NewDeviceRegistry returns an empty registry.
func NewDeviceRegistry() *DeviceRegistry {
	return &DeviceRegistry{
		lists: map[models.ListKind]cmap.ConcurrentMap[models.DeviceID, models.DeviceDescriptor]{
			models.ListAttached:  cmap.NewStringer[models.DeviceID, models.DeviceDescriptor](),
			models.ListAvailable: cmap.NewStringer[models.DeviceID, models.DeviceDescriptor](),
		},
		locks: map[models.ListKind]*sync.RWMutex{
			models.ListAttached:  {},
			models.ListAvailable: {},
		},
	}
}

// Replace swaps the list for kind and reports which devices appeared and disappeared.
func (r *DeviceRegistry) Replace(kind models.ListKind, devices []models.DeviceDescriptor) (added, removed []models.DeviceDescriptor) {
	lock := r.locks[kind]
	lock.Lock()
	defer lock.Unlock()

	list := r.lists[kind]
	previous := sortedDevices(list)

	next := make(map[models.DeviceID]models.DeviceDescriptor, len(devices))
	for _, d := range devices {
		next[d.ID()] = d
	}
	list.Clear()
	list.MSet(next)

	key := func(d models.DeviceDescriptor) models.DeviceID { return d.ID() }
	return utils.Difference(devices, previous, key), utils.Difference(previous, devices, key)
}

// Devices returns the list for kind ordered by vendor:product.
func (r *DeviceRegistry) Devices(kind models.ListKind) []models.DeviceDescriptor {
	lock := r.locks[kind]
	lock.RLock()
	defer lock.RUnlock()
	return sortedDevices(r.lists[kind])
}

// Lookup finds a device in either list, attached first.
func (r *DeviceRegistry) Lookup(id models.DeviceID) (models.DeviceDescriptor, models.ListKind, bool) {
	for _, kind := range []models.ListKind{models.ListAttached, models.ListAvailable} {
		lock := r.locks[kind]
		lock.RLock()
		d, ok := r.lists[kind].Get(id)
		lock.RUnlock()
		if ok {
			return d, kind, true
		}
	}
	return models.DeviceDescriptor{}, "", false
}

func sortedDevices(list cmap.ConcurrentMap[models.DeviceID, models.DeviceDescriptor]) []models.DeviceDescriptor {
	items := list.Items()
	devices := make([]models.DeviceDescriptor, 0, len(items))
	for _, d := range items {
		devices = append(devices, d)
	}
	sort.Slice(devices, func(i, j int) bool {
		return devices[i].ID().String() < devices[j].ID().String()
	})
	return devices
}
