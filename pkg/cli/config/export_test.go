package config

// SetPath exports the policy file path for testing.
func (x *Policy) SetPath(path string) {
	x.path = path
}
