// Package waiting implements the iPOPO Instantiation Waiting List
// (spec.md §4.H): a global claim on (factory_name, instance_name) pairs
// that retries instantiation as matching factories appear, optionally fed
// by descriptor files dropped into a watched directory.
//
// Grounded on pelix/ipopo/waiting_list.py (original_source) and on
// SPEC_FULL.md's DOMAIN STACK choices: github.com/fsnotify/fsnotify for the
// directory watch and golang.org/x/sync/errgroup for the concurrent retry
// sweep when a factory registers.
package waiting

import (
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/tcalmant/ipopo-sub000/internal/ipopo/descriptor"
)

// Attempter is the narrow view of the iPOPO facade the waiting list needs:
// one best-effort instantiation attempt.
type Attempter interface {
	Instantiate(factoryName, instanceName string, properties map[string]any) error
}

// ErrDuplicateInstance is returned by Add when instanceName is already
// claimed (spec.md §4.H "Instance names are globally unique across the
// waiting list — duplicates fail").
type ErrDuplicateInstance struct {
	InstanceName string
}

func (e *ErrDuplicateInstance) Error() string {
	return "instance name already claimed: " + e.InstanceName
}

type request struct {
	factory    string
	instance   string
	properties map[string]any
	resolved   bool
}

// List is the instantiation waiting list.
type List struct {
	attempter Attempter

	mu         sync.Mutex
	byInstance map[string]*request
	byFactory  map[string][]*request

	watcher  *fsnotify.Watcher
	watchDir string
	done     chan struct{}
}

// New builds an empty waiting list backed by attempter.
func New(attempter Attempter) *List {
	return &List{
		attempter:  attempter,
		byInstance: make(map[string]*request),
		byFactory:  make(map[string][]*request),
	}
}

// Add claims (factoryName, instanceName) and, if the target factory is
// already known, attempts instantiation immediately. A failed immediate
// attempt is not an error: the entry stays queued for the next
// FactoryRegistered or Sweep (spec.md §4.H "success removes the entry from
// the retry queue but keeps the name claim").
func (l *List) Add(factoryName, instanceName string, properties map[string]any) error {
	l.mu.Lock()
	if _, exists := l.byInstance[instanceName]; exists {
		l.mu.Unlock()
		return &ErrDuplicateInstance{InstanceName: instanceName}
	}
	req := &request{factory: factoryName, instance: instanceName, properties: properties}
	l.byInstance[instanceName] = req
	l.byFactory[factoryName] = append(l.byFactory[factoryName], req)
	l.mu.Unlock()

	l.attempt(req)
	return nil
}

// Remove releases instanceName's claim, mapping back to the factory it was
// filed under (spec.md §4.H "remove(instance_name) always maps back to the
// correct factory").
func (l *List) Remove(instanceName string) (factoryName string, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	req, exists := l.byInstance[instanceName]
	if !exists {
		return "", false
	}
	delete(l.byInstance, instanceName)

	list := l.byFactory[req.factory]
	for i, r := range list {
		if r == req {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(l.byFactory, req.factory)
	} else {
		l.byFactory[req.factory] = list
	}
	return req.factory, true
}

func (l *List) attempt(req *request) {
	l.mu.Lock()
	if req.resolved {
		l.mu.Unlock()
		return
	}
	l.mu.Unlock()

	if err := l.attempter.Instantiate(req.factory, req.instance, req.properties); err == nil {
		l.mu.Lock()
		req.resolved = true
		l.mu.Unlock()
	}
}

// FactoryRegistered retries every unresolved entry queued for factoryName
// concurrently (spec.md §4.H "An iPOPO-factory-registered event triggers
// one instantiation attempt for every entry keyed on that factory").
// Satisfies the ipopo package's FactoryListener interface structurally.
func (l *List) FactoryRegistered(factoryName string) {
	l.mu.Lock()
	pending := append([]*request(nil), l.byFactory[factoryName]...)
	l.mu.Unlock()

	g := new(errgroup.Group)
	for _, req := range pending {
		req := req
		g.Go(func() error {
			l.attempt(req)
			return nil
		})
	}
	_ = g.Wait()
}

// Sweep retries every unresolved entry across every factory, concurrently.
// Useful as a periodic fallback alongside FactoryRegistered.
func (l *List) Sweep() {
	l.mu.Lock()
	pending := make([]*request, 0, len(l.byInstance))
	for _, req := range l.byInstance {
		pending = append(pending, req)
	}
	l.mu.Unlock()

	g := new(errgroup.Group)
	for _, req := range pending {
		req := req
		g.Go(func() error {
			l.attempt(req)
			return nil
		})
	}
	_ = g.Wait()
}

// WatchDirectory starts watching dir for newly created instance-descriptor
// YAML files, feeding each one through Add as it appears.
func (l *List) WatchDirectory(dir string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return err
	}

	l.watcher = w
	l.watchDir = dir
	l.done = make(chan struct{})
	go l.watchLoop()
	return nil
}

func (l *List) watchLoop() {
	for {
		select {
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				l.handleDescriptorFile(event.Name)
			}
		case _, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
		case <-l.done:
			return
		}
	}
}

func (l *List) handleDescriptorFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	inst, err := descriptor.ParseInstance(data)
	if err != nil || inst.Factory == "" || inst.Name == "" {
		return
	}
	_ = l.Add(inst.Factory, inst.Name, inst.Properties)
}

// Close stops the directory watch, if any.
func (l *List) Close() error {
	if l.watcher == nil {
		return nil
	}
	close(l.done)
	return l.watcher.Close()
}
