package component

import "github.com/tcalmant/ipopo-sub000/internal/handler"

// CheckLifecycle re-evaluates whether the instance should validate or
// invalidate given its handlers' current validity (spec.md §4.G state
// diagram). It is idempotent and safe to call from any binding callback.
func (s *StoredInstance) CheckLifecycle() {
	s.mu.Lock()
	if s.state == StateKilled || s.state == StateErroneous || s.state == StateValidating {
		s.mu.Unlock()
		return
	}
	allValid := s.allHandlersValid()
	state := s.state
	s.mu.Unlock()

	switch {
	case state == StateInvalid && allValid:
		s.validate()
	case state == StateValid && !allValid:
		s.invalidate()
	}
}

func (s *StoredInstance) allHandlersValid() bool {
	for _, h := range s.handlers {
		if vc, ok := h.(handler.ValidityChecker); ok && !vc.IsValid() {
			return false
		}
	}
	return true
}

// validate runs the invalid -> validating -> valid|erroneous transition
// (spec.md §4.G). A failing user Validate call records the formatted error
// trace and moves the instance to Erroneous without invalidating further
// (there was nothing valid to tear down).
func (s *StoredInstance) validate() {
	s.mu.Lock()
	if s.state != StateInvalid {
		s.mu.Unlock()
		return
	}
	s.state = StateValidating
	handlers := append([]handler.Handler(nil), s.handlers...)
	userObject := s.userObject
	s.mu.Unlock()

	for _, h := range handlers {
		if p, ok := h.(handler.PreValidator); ok {
			if err := callGuarded(func() error { return p.PreValidate() }); err != nil {
				s.enterErroneous(err)
				return
			}
		}
	}

	if v, ok := userObject.(Validatable); ok {
		if err := callGuarded(v.Validate); err != nil {
			if stop, isStop := err.(*ErrFrameworkStop); isStop {
				s.Kill()
				if stop.StopFramework {
					s.mu.Lock()
					onStop := s.onFrameworkStop
					s.mu.Unlock()
					if onStop != nil {
						safeCall(func() { onStop(stop.Reason) })
					}
				}
				return
			}
			s.enterErroneous(err)
			return
		}
	}

	for _, h := range handlers {
		if p, ok := h.(handler.PostValidator); ok {
			if err := callGuarded(func() error { return p.PostValidate() }); err != nil {
				s.enterErroneous(err)
				return
			}
		}
	}

	s.mu.Lock()
	if s.state == StateValidating {
		s.state = StateValid
	}
	s.mu.Unlock()
}

func (s *StoredInstance) enterErroneous(err error) {
	s.mu.Lock()
	s.state = StateErroneous
	s.errorTrace = err.Error()
	s.mu.Unlock()
}

// invalidate runs the valid -> invalid transition (spec.md §4.G "dep lost /
// controller off").
func (s *StoredInstance) invalidate() {
	s.mu.Lock()
	if s.state != StateValid {
		s.mu.Unlock()
		return
	}
	s.state = StateInvalid
	handlers := append([]handler.Handler(nil), s.handlers...)
	userObject := s.userObject
	s.mu.Unlock()

	runInvalidationHooks(userObject, handlers)
}

// RetryErroneous is only valid from Erroneous: it merges the supplied
// property update into the context, clears the error trace, resets state to
// Invalid and re-runs CheckLifecycle (spec.md §4.G "retry_erroneous").
func (s *StoredInstance) RetryErroneous(update map[string]any) error {
	s.mu.Lock()
	if s.state != StateErroneous {
		state := s.state
		s.mu.Unlock()
		return &ErrNotErroneous{InstanceName: s.name, State: state}
	}
	s.state = StateInvalid
	s.errorTrace = ""
	s.mu.Unlock()

	if len(update) > 0 {
		s.ctx.Merge(update)
	}
	s.CheckLifecycle()
	return nil
}

func callGuarded(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
				return
			}
			err = &HandlerConfigError{Reason: "panic during callback"}
		}
	}()
	return fn()
}
