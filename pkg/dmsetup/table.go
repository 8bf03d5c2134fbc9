package dmsetup

import "fmt"

const (
	// RegionSectors is the dm-clone region size in sectors.
	RegionSectors = 8

	// EnableHydration is the control message that flips a no_hydration
	// clone target into active background copy.
	EnableHydration = "enable_hydration"
)

// CloneTable builds a clone target table line covering sizeSectors,
// wired as metadata device, local destination device and remote source
// device. The overlay starts in no_hydration mode: reads pass through
// to the source until hydration is enabled by message.
func CloneTable(metaDev, destDev, sourceDev string, sizeSectors uint64) string {
	return fmt.Sprintf("0 %d clone %s %s %s %d 1 no_hydration",
		sizeSectors, metaDev, destDev, sourceDev, RegionSectors)
}

// LinearTable builds a linear target table line mapping sizeSectors
// straight onto dev.
func LinearTable(dev string, sizeSectors uint64) string {
	return fmt.Sprintf("0 %d linear %s 0", sizeSectors, dev)
}
