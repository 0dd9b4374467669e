package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/varenko/inquest/internal/logging"
)

// Manager orchestrates the lifecycle of multiple components with dependency
// awareness: components start after their dependencies and stop before them,
// with timeout protection so a hung component cannot stall shutdown forever.
type Manager struct {
	components        []Component
	dependencies      map[Component][]Component
	running           map[Component]bool
	startedComponents []Component // startup order, for reverse-order shutdown
	shutdownTimeout   time.Duration
	mu                sync.RWMutex
	registrationMutex sync.Mutex // register must not race with start/stop
	logger            *logging.Logger
}

// NewManager creates a lifecycle manager with a 30-second per-component
// shutdown timeout.
func NewManager() *Manager {
	return &Manager{
		components:      []Component{},
		dependencies:    make(map[Component][]Component),
		running:         make(map[Component]bool),
		shutdownTimeout: 30 * time.Second,
		logger:          logging.GetLogger("lifecycle.manager"),
	}
}

// Register adds a component with optional dependencies. Dependencies must be
// registered first; a component starts only after all its dependencies are
// running and stops before any of them.
func (m *Manager) Register(component Component, dependsOn ...Component) error {
	m.registrationMutex.Lock()
	defer m.registrationMutex.Unlock()

	if component == nil {
		return fmt.Errorf("cannot register nil component")
	}
	if component.Name() == "" {
		return fmt.Errorf("component must have a non-empty name")
	}

	for _, c := range m.components {
		if c == component {
			return fmt.Errorf("component %s is already registered", component.Name())
		}
	}

	for _, dep := range dependsOn {
		registered := false
		for _, c := range m.components {
			if c == dep {
				registered = true
				break
			}
		}
		if !registered {
			return fmt.Errorf("dependency %s is not registered", dep.Name())
		}
	}

	if m.wouldCreateCycle(component, dependsOn) {
		return fmt.Errorf("registering %s would create a circular dependency", component.Name())
	}

	m.components = append(m.components, component)
	m.dependencies[component] = dependsOn
	m.running[component] = false

	m.logger.Debug("Registered component %s with %d dependencies", component.Name(), len(dependsOn))
	return nil
}

func (m *Manager) wouldCreateCycle(component Component, dependsOn []Component) bool {
	visited := make(map[Component]bool)
	return m.hasCycleDFS(component, dependsOn, visited)
}

func (m *Manager) hasCycleDFS(node Component, dependsOn []Component, visited map[Component]bool) bool {
	for _, dep := range dependsOn {
		if dep == node {
			return true
		}
		if visited[dep] {
			continue
		}
		visited[dep] = true
		if m.hasCycleDFS(node, m.dependencies[dep], visited) {
			return true
		}
	}
	return false
}

// Start starts all registered components in dependency order. If any
// component fails, the ones already started are stopped again in reverse
// order and the error is returned.
func (m *Manager) Start(ctx context.Context) error {
	m.registrationMutex.Lock()
	defer m.registrationMutex.Unlock()

	m.startedComponents = []Component{}

	for _, component := range m.startOrder() {
		m.logger.Info("Starting %s", component.Name())
		startTime := time.Now()

		if err := component.Start(ctx); err != nil {
			m.logger.Error("Failed to start %s: %v", component.Name(), err)
			m.rollback()
			return fmt.Errorf("initialization failed for %s: %w", component.Name(), err)
		}

		m.mu.Lock()
		m.running[component] = true
		m.startedComponents = append(m.startedComponents, component)
		m.mu.Unlock()

		m.logger.Info("%s started successfully (took %dms)",
			component.Name(), time.Since(startTime).Milliseconds())
	}

	m.logger.Info("All components started successfully")
	return nil
}

// startOrder returns components in dependency order (dependencies first).
func (m *Manager) startOrder() []Component {
	visited := make(map[Component]bool)
	sorted := []Component{}

	var visit func(Component)
	visit = func(component Component) {
		visited[component] = true
		for _, dep := range m.dependencies[component] {
			if !visited[dep] {
				visit(dep)
			}
		}
		sorted = append(sorted, component)
	}

	for _, component := range m.components {
		if !visited[component] {
			visit(component)
		}
	}
	return sorted
}

// rollback stops components started during a failed startup attempt, in
// reverse order, each with a short timeout.
func (m *Manager) rollback() {
	for i := len(m.startedComponents) - 1; i >= 0; i-- {
		component := m.startedComponents[i]
		m.logger.Debug("Rolling back: stopping %s", component.Name())

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := component.Stop(ctx); err != nil {
			m.logger.Warn("Error stopping %s during rollback: %v", component.Name(), err)
		}
		cancel()

		m.mu.Lock()
		m.running[component] = false
		m.mu.Unlock()
	}
}

// Stop stops all started components in reverse startup order. Each component
// gets its own deadline of the shutdown timeout; errors are logged but never
// prevent the remaining components from stopping.
func (m *Manager) Stop(ctx context.Context) error {
	m.registrationMutex.Lock()
	defer m.registrationMutex.Unlock()

	m.logger.Info("Stopping all components")

	for i := len(m.startedComponents) - 1; i >= 0; i-- {
		component := m.startedComponents[i]
		if !m.IsRunning(component) {
			continue
		}

		m.logger.Info("Stopping %s", component.Name())
		startTime := time.Now()

		componentCtx, cancel := context.WithTimeout(ctx, m.shutdownTimeout)
		err := component.Stop(componentCtx)
		cancel()

		if err != nil {
			if err == context.DeadlineExceeded {
				m.logger.Warn("Component %s exceeded grace period (%dms timeout), forcing termination",
					component.Name(), m.shutdownTimeout.Milliseconds())
			} else {
				m.logger.Error("Error stopping %s: %v", component.Name(), err)
			}
		} else {
			m.logger.Info("%s stopped successfully (took %dms)",
				component.Name(), time.Since(startTime).Milliseconds())
		}

		m.mu.Lock()
		m.running[component] = false
		m.mu.Unlock()
	}

	m.logger.Info("All components stopped")
	return nil
}

// IsRunning returns true if the component has started and has not stopped.
func (m *Manager) IsRunning(component Component) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	running, exists := m.running[component]
	return exists && running
}

// SetShutdownTimeout sets the per-component grace period for Stop.
func (m *Manager) SetShutdownTimeout(timeout time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdownTimeout = timeout
}
