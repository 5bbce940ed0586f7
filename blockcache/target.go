package blockcache

import (
	"strconv"
	"strings"

	"github.com/rapiddisk/rapiddisk-go/blkerr"
	"github.com/rapiddisk/rapiddisk-go/ramdisk"
)

// ParseTarget parses a device-mapper-style constructor string (spec §6.2)
// into a Config. Positional, space-separated:
//
//	<source-path> <cache-path> [size-sectors] [mode] [assoc]
//
// The returned Config has SourcePath/CachePath/SizeBlocks/Mode/Assoc
// populated; SourceDev/CacheDev are left nil for the caller to resolve
// (opening a real device, or looking a RamDisk volume up by path) before
// passing the Config to New, since resolving a path to a live BlockDevice
// requires runtime context this parser doesn't have.
func ParseTarget(line string) (Config, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return Config{}, blkerr.New(blkerr.InvalidArgument, "constructor string requires at least a source and cache path, got %q", line)
	}
	if len(fields) > 5 {
		return Config{}, blkerr.New(blkerr.InvalidArgument, "constructor string takes at most 5 arguments, got %d", len(fields))
	}

	cfg := Config{
		SourcePath: fields[0],
		CachePath:  fields[1],
	}
	if !strings.HasPrefix(cfg.CachePath, ramdisk.DevicePathPrefix) {
		return Config{}, blkerr.New(blkerr.InvalidArgument, "cache path %q must be a RamDisk path (prefix %q)", cfg.CachePath, ramdisk.DevicePathPrefix)
	}

	if len(fields) >= 3 {
		sizeSectors, err := strconv.ParseUint(fields[2], 10, 64)
		if err != nil {
			return Config{}, blkerr.New(blkerr.InvalidArgument, "invalid size in sectors %q: %v", fields[2], err)
		}
		cfg.SizeBlocks = sizeSectors / DefaultBlockSizeSectors
	}

	if len(fields) >= 4 {
		mode, err := ParseMode(fields[3])
		if err != nil {
			return Config{}, err
		}
		cfg.Mode = mode
	}

	if len(fields) >= 5 {
		assoc, err := strconv.ParseUint(fields[4], 10, 64)
		if err != nil {
			return Config{}, blkerr.New(blkerr.InvalidArgument, "invalid associativity %q: %v", fields[4], err)
		}
		cfg.Assoc = assoc
	}

	return cfg, nil
}
