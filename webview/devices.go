package webview

import "sync"

// deviceDirectory caches device models reported by the page. It implements
// classify.Devices.
type deviceDirectory struct {
	mu     sync.RWMutex
	models map[string]string
}

func newDeviceDirectory() *deviceDirectory {
	return &deviceDirectory{models: map[string]string{}}
}

func (d *deviceDirectory) Model(iden string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m, ok := d.models[iden]
	return m, ok
}

func (d *deviceDirectory) put(iden, model string) {
	if iden == "" || model == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.models[iden] = model
}

func (d *deviceDirectory) replace(models map[string]string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for iden, model := range models {
		if iden != "" && model != "" {
			d.models[iden] = model
		}
	}
}
