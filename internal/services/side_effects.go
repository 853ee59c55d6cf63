package services

import "log"

// SideEffects runs non-critical follow-up work. A failure is logged and
// dropped; it never reaches the caller of the primary operation.
type SideEffects struct {
	lg *log.Logger
}

func NewSideEffects(lg *log.Logger) SideEffects {
	if lg == nil {
		lg = log.Default()
	}
	return SideEffects{lg: lg}
}

// Run executes fn and reports whether it succeeded.
func (s SideEffects) Run(name string, fn func() error) bool {
	if err := fn(); err != nil {
		s.lg.Printf("❗️ %s failed: %v", name, err)
		return false
	}
	return true
}
