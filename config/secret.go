package config

// Secret is a string that is masked when printed.
type Secret string

// String ...
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "*****"
}
