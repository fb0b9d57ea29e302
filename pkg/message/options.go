package message

import "sort"

// Option is a single CoAP option (number, opaque value). Options carry
// uninterpreted bytes; callers use the typed helpers below (URIPath,
// ContentFormat, ...) to read or write well-known options.
type Option struct {
	Number OptionNumber
	Value  []byte
}

// Options is an ordered collection of options. CoAP requires options to be
// transmitted in non-decreasing option-number order so the delta encoding
// works; Options maintains that order internally so callers never have to
// sort before encoding.
type Options []Option

// Add appends an option and re-sorts the collection by option number,
// preserving the relative order of options that share a number (repeatable
// options, e.g. URI-Path, rely on this).
func (o *Options) Add(number OptionNumber, value []byte) {
	*o = append(*o, Option{Number: number, Value: value})
	sort.SliceStable(*o, func(i, j int) bool {
		return (*o)[i].Number < (*o)[j].Number
	})
}

// AddString is a convenience wrapper for string-valued options.
func (o *Options) AddString(number OptionNumber, value string) {
	o.Add(number, []byte(value))
}

// AddUint adds an option whose value is the minimal big-endian encoding of
// v, per RFC 7252 Section 3.2 ("uint" option format).
func (o *Options) AddUint(number OptionNumber, v uint32) {
	var buf [4]byte
	n := 4
	for n > 0 && (v>>uint((n-1)*8))&0xff == 0 {
		n--
	}
	for i := 0; i < n; i++ {
		buf[i] = byte(v >> uint((n-1-i)*8))
	}
	o.Add(number, append([]byte(nil), buf[:n]...))
}

// Get returns the first option with the given number and whether it was
// present.
func (o Options) Get(number OptionNumber) (Option, bool) {
	for _, opt := range o {
		if opt.Number == number {
			return opt, true
		}
	}
	return Option{}, false
}

// GetAll returns every option with the given number, in encoded order.
func (o Options) GetAll(number OptionNumber) []Option {
	var out []Option
	for _, opt := range o {
		if opt.Number == number {
			out = append(out, opt)
		}
	}
	return out
}

// GetUint decodes the value of the first option with the given number as a
// big-endian uint, per RFC 7252 Section 3.2.
func (o Options) GetUint(number OptionNumber) (uint32, bool) {
	opt, ok := o.Get(number)
	if !ok {
		return 0, false
	}
	var v uint32
	for _, b := range opt.Value {
		v = (v << 8) | uint32(b)
	}
	return v, true
}

// GetString decodes the value of the first option with the given number as
// a string.
func (o Options) GetString(number OptionNumber) (string, bool) {
	opt, ok := o.Get(number)
	if !ok {
		return "", false
	}
	return string(opt.Value), true
}

// Remove drops every option with the given number.
func (o *Options) Remove(number OptionNumber) {
	kept := (*o)[:0]
	for _, opt := range *o {
		if opt.Number != number {
			kept = append(kept, opt)
		}
	}
	*o = kept
}

// URIPath reassembles the request URI path from the (repeatable)
// Uri-Path options, e.g. "/sensors/temp".
func (o Options) URIPath() string {
	var path string
	for _, opt := range o.GetAll(OptionURIPath) {
		path += "/" + string(opt.Value)
	}
	return path
}

// SetURIPath replaces any existing Uri-Path options with one segment per
// "/"-delimited component of path.
func (o *Options) SetURIPath(path string) {
	o.Remove(OptionURIPath)
	start := 0
	for i := 0; i <= len(path); i++ {
		if i == len(path) || path[i] == '/' {
			if i > start {
				o.AddString(OptionURIPath, path[start:i])
			}
			start = i + 1
		}
	}
}

// ContentFormat returns the Content-Format option value, if present.
func (o Options) ContentFormat() (uint32, bool) {
	return o.GetUint(OptionContentFormat)
}

// Observe returns the Observe option value, if present.
func (o Options) Observe() (uint32, bool) {
	return o.GetUint(OptionObserve)
}
