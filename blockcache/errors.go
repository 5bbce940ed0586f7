package blockcache

import "github.com/rapiddisk/rapiddisk-go/blkerr"

func errInvalidMode(s string) error {
	return blkerr.New(blkerr.InvalidArgument, "mode must be \"0\" (write-through) or \"1\" (write-around), got %q", s)
}
