package field

import "unsafe"

// All raw memory reinterpretation in this module lives in this file.

func components[T Element]() int {
	var zero T
	return int(unsafe.Sizeof(zero)) / Width
}

func flatten[T Element](f Field[T]) []float64 {
	if len(f) == 0 {
		return nil
	}
	return unsafe.Slice((*float64)(unsafe.Pointer(unsafe.SliceData(f))), len(f)*components[T]())
}

// Alias returns the bytes backing buf without copying them.
//
// The result is only valid while the buffer's storage is neither resized nor
// reallocated; appending to the source slice afterwards may leave the alias
// pointing at the old backing array. Keeping the storage stable is the
// caller's job.
func Alias(buf Buffer) []byte {
	vals := buf.Values()
	if len(vals) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(vals))), len(vals)*Width)
}
