package utils

// Guard runs a cleanup when a constructor that has already acquired resources (serial ports, GPIO
// lines) returns early with an error. Use it as
//
//	guard := NewGuard(func() { port.Close() })
//	defer guard.OnFail()
//	if err != nil { return err }
//	guard.Success()
type Guard struct {
	OnFail  func()
	success bool
}

// NewGuard returns a Guard that calls onFailCleanup from OnFail unless Success was called.
func NewGuard(onFailCleanup func()) *Guard {
	ret := &Guard{}
	ret.OnFail = func() {
		if !ret.success {
			onFailCleanup()
		}
	}
	return ret
}

// Success marks the guarded function as having succeeded.
func (guard *Guard) Success() {
	guard.success = true
}
