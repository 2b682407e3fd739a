package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"peer-chat-app/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Status represents the health status of a component
type Status string

const (
	// StatusUp indicates a component is working correctly
	StatusUp Status = "up"
	// StatusDown indicates a component is not working
	StatusDown Status = "down"
	// StatusDegraded indicates a component is working but with reduced functionality
	StatusDegraded Status = "degraded"
)

// Component represents a system component that can be health-checked
type Component struct {
	Name        string    `json:"name"`
	Status      Status    `json:"status"`
	Description string    `json:"description,omitempty"`
	Error       string    `json:"error,omitempty"`
	LastChecked time.Time `json:"last_checked"`
}

// Check represents a health check function
type Check func() (Status, string, error)

// Checker manages health checks for the system
type Checker struct {
	checks      map[string]Check
	components  map[string]*Component
	critical    map[string]bool
	checkPeriod time.Duration
	mutex       sync.RWMutex
	log         *logger.Logger
	stop        chan struct{}
	stopOnce    sync.Once
}

// NewChecker creates a new health checker
func NewChecker(log *logger.Logger, checkPeriod time.Duration) *Checker {
	checker := &Checker{
		checks:      make(map[string]Check),
		components:  make(map[string]*Component),
		critical:    make(map[string]bool),
		checkPeriod: checkPeriod,
		log:         log,
		stop:        make(chan struct{}),
	}

	checker.RegisterCheck("self", false, func() (Status, string, error) {
		return StatusUp, "Health checker is running", nil
	})

	return checker
}

// RegisterCheck registers a new health check. Critical components gate the
// overall health status; non-critical ones only show up in the report.
func (c *Checker) RegisterCheck(name string, critical bool, check Check) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.checks[name] = check
	c.critical[name] = critical
	c.components[name] = &Component{
		Name:        name,
		Status:      StatusDown,
		Description: "Not checked yet",
		LastChecked: time.Time{},
	}
}

// RunChecks executes all registered health checks
func (c *Checker) RunChecks() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	for name, check := range c.checks {
		status, description, err := check()

		component := c.components[name]
		component.Status = status
		component.Description = description
		component.LastChecked = time.Now()

		if err != nil {
			component.Error = err.Error()
			c.log.Error("Health check failed",
				"component", name,
				"status", string(status),
				"error", err.Error(),
			)
		} else {
			component.Error = ""
			c.log.Debug("Health check completed",
				"component", name,
				"status", string(status),
			)
		}
	}
}

// Start begins periodic health checks
func (c *Checker) Start() {
	go func() {
		c.RunChecks()

		ticker := time.NewTicker(c.checkPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.RunChecks()
			case <-c.stop:
				return
			}
		}
	}()
}

// Stop halts the periodic health checks
func (c *Checker) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// GetStatus returns a snapshot of the current component statuses
func (c *Checker) GetStatus() map[string]*Component {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	result := make(map[string]*Component, len(c.components))
	for k, v := range c.components {
		componentCopy := *v
		result[k] = &componentCopy
	}

	return result
}

// IsSystemHealthy returns true if all critical components are up
func (c *Checker) IsSystemHealthy() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	for name, component := range c.components {
		if c.critical[name] && component.Status == StatusDown {
			return false
		}
	}

	return true
}

// Handler returns a gin handler reporting the overall health status
func (c *Checker) Handler() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		components := c.GetStatus()

		status := "ok"
		code := http.StatusOK
		if !c.IsSystemHealthy() {
			status = "unavailable"
			code = http.StatusServiceUnavailable
		}

		ctx.JSON(code, gin.H{
			"status":     status,
			"timestamp":  time.Now().UTC(),
			"components": components,
		})
	}
}

// RegisterDatabaseCheck registers the history database as a critical component
func (c *Checker) RegisterDatabaseCheck(ping func() error) {
	c.RegisterCheck("database", true, func() (Status, string, error) {
		if err := ping(); err != nil {
			return StatusDown, "Database connection failed", err
		}
		return StatusUp, "Database connection is established", nil
	})
}

// RegisterRedisCheck registers the presence store. Presence degrades
// gracefully when Redis is down, so the component is not critical.
func (c *Checker) RegisterRedisCheck(ping func(ctx context.Context) error) {
	c.RegisterCheck("redis", false, func() (Status, string, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		if err := ping(ctx); err != nil {
			return StatusDegraded, "Presence store unreachable", err
		}
		return StatusUp, "Presence store is reachable", nil
	})
}
