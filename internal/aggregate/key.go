package aggregate

import "strconv"

// Key is a category key produced by a dimension: either an integer (hour,
// compact date) or a string (day abbreviation, raw category value). Keys are
// comparable and usable as map keys.
type Key struct {
	num     int
	str     string
	numeric bool
}

// IntKey wraps an integer category key.
func IntKey(n int) Key { return Key{num: n, numeric: true} }

// StringKey wraps a string category key.
func StringKey(s string) Key { return Key{str: s} }

// Int returns the numeric key value.
func (k Key) Int() (int, bool) { return k.num, k.numeric }

// IsNumeric reports whether the key is an integer key.
func (k Key) IsNumeric() bool { return k.numeric }

// String renders the key for display.
func (k Key) String() string {
	if k.numeric {
		return strconv.Itoa(k.num)
	}
	return k.str
}

// ParseKey converts a configured category string into a key, preferring the
// numeric form. Whitelists and filters are written this way in YAML.
func ParseKey(s string) Key {
	if n, err := strconv.Atoi(s); err == nil {
		return IntKey(n)
	}
	return StringKey(s)
}
