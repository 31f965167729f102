package clone

import "maps"

type Cloner[T any] interface {
	Clone() T
}

func TrivialPtr[T any](a *T) *T {
	if a == nil {
		return nil
	}
	b := *a
	return &b
}

func DeepSlice[T Cloner[T]](a []T) []T {
	if a == nil {
		return nil
	}
	res := make([]T, len(a))
	for i, v := range a {
		res[i] = v.Clone()
	}
	return res
}

func DeepMapPtr[K comparable, T Cloner[T]](m map[K]*T) map[K]*T {
	if m == nil {
		return nil
	}
	res := make(map[K]*T, len(m))
	for k, v := range m {
		if v == nil {
			res[k] = nil
			continue
		}
		c := (*v).Clone()
		res[k] = &c
	}
	return res
}

func Map[K comparable, V any](m map[K]V) map[K]V {
	return maps.Clone(m)
}
