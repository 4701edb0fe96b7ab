package combat

// Option holds a value that may be absent.
// The zero Option is None.
type Option[T any] struct {
	value T
	ok    bool
}

// Some wraps a present value.
func Some[T any](v T) Option[T] {
	return Option[T]{value: v, ok: true}
}

// None returns an empty Option.
func None[T any]() Option[T] {
	return Option[T]{}
}

// Get returns the value and whether it is present.
func (o Option[T]) Get() (T, bool) {
	return o.value, o.ok
}

// IsSome reports whether a value is present.
func (o Option[T]) IsSome() bool { return o.ok }

// IsNone reports whether the option is empty.
func (o Option[T]) IsNone() bool { return !o.ok }

// Ptr returns a pointer to a copy of the value, or nil when absent.
// Used when handing optional fields to JSON payloads.
func (o Option[T]) Ptr() *T {
	if !o.ok {
		return nil
	}
	v := o.value
	return &v
}
