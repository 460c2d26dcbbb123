package csav

import "strconv"

func itoa(v uint32) string {
	return strconv.FormatUint(uint64(v), 10)
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func must2[T1, T2 any](v1 T1, v2 T2, err error) (T1, T2) {
	if err != nil {
		panic(err)
	}
	return v1, v2
}

func ensure(err error) {
	if err != nil {
		panic(err)
	}
}
