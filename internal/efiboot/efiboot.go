// Package efiboot implements §4.6 step 7's EFI setup: enumerate existing
// boot entries, delete any whose label matches the new OS, then create a
// new entry pointing at \EFI\BOOT\bootx64.efi on the boot partition.
//
// Built on github.com/canonical/go-efilib, the same EFI variable library
// canonical-snapd uses for its own setefibootvars machinery (grounded in
// canonical-snapd's go.mod and boot/setefibootvars_linux_test.go, which
// exercises exactly this ReadVariable/WriteVariable/LoadOption surface;
// the non-test implementation was not present in the retrieved pack, so
// this package reconstructs the same call pattern the test mocks).
package efiboot

import (
	"fmt"
	"sort"

	efi "github.com/canonical/go-efilib"
	"github.com/canonical/go-efilib/linux"
)

// Entry is one parsed EFI boot entry.
type Entry struct {
	Number      uint16
	Label       string
	LoadOption  *efi.LoadOption
}

const bootOrderVar = "BootOrder"

func bootVarName(number uint16) string {
	return fmt.Sprintf("Boot%04X", number)
}

// List enumerates every BootNNNN variable under the global GUID,
// returning them in BootOrder order when a BootOrder variable exists,
// falling back to numeric order otherwise (§4.6 step 7 "enumerate
// existing boot entries").
func List() ([]Entry, error) {
	descriptors, err := efi.ListVariables()
	if err != nil {
		return nil, fmt.Errorf("efiboot: list variables: %w", err)
	}

	var entries []Entry
	for _, d := range descriptors {
		if d.GUID != efi.GlobalVariable || len(d.Name) != 8 || d.Name[:4] != "Boot" {
			continue
		}
		var number uint16
		if _, err := fmt.Sscanf(d.Name, "Boot%04X", &number); err != nil {
			continue
		}

		data, _, err := efi.ReadVariable(d.Name, d.GUID)
		if err != nil {
			continue
		}
		opt, err := efi.ReadLoadOption(bytesReader(data))
		if err != nil {
			continue
		}
		entries = append(entries, Entry{Number: number, Label: opt.Description, LoadOption: opt})
	}

	order, _, err := efi.ReadVariable(bootOrderVar, efi.GlobalVariable)
	if err == nil {
		sorted := sortByBootOrder(entries, order)
		return sorted, nil
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Number < entries[j].Number })
	return entries, nil
}

// DeleteByLabel removes every boot entry whose description matches label
// (§4.6 step 7: "delete any whose label matches the new OS").
func DeleteByLabel(label string) error {
	entries, err := List()
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Label != label {
			continue
		}
		if err := efi.WriteVariable(bootVarName(e.Number), efi.GlobalVariable, 0, nil); err != nil {
			return fmt.Errorf("efiboot: delete %s: %w", bootVarName(e.Number), err)
		}
	}
	return nil
}

// Create writes a new BootNNNN entry at the first free number pointing
// at filePath on the ESP mounted at mountpoint, and prepends it to
// BootOrder (§4.6 step 7: "create a new entry pointing at
// \EFI\BOOT\bootx64.efi on the boot partition, disk 1").
func Create(label, mountpoint, filePath string) error {
	devicePath, err := linux.FilePathToDevicePath(filePath, linux.ShortFormPathHint)
	if err != nil {
		return fmt.Errorf("efiboot: resolve device path for %s: %w", filePath, err)
	}

	opt := &efi.LoadOption{
		Attributes:  efi.LoadOptionActive | efi.LoadOptionCategoryBoot,
		Description: label,
		FilePath:    devicePath,
	}
	data, err := opt.Bytes()
	if err != nil {
		return fmt.Errorf("efiboot: encode load option: %w", err)
	}

	number, err := firstFreeNumber()
	if err != nil {
		return fmt.Errorf("efiboot: %w", err)
	}

	attrs := efi.AttributeNonVolatile | efi.AttributeBootserviceAccess | efi.AttributeRuntimeAccess
	if err := efi.WriteVariable(bootVarName(number), efi.GlobalVariable, attrs, data); err != nil {
		return fmt.Errorf("efiboot: write %s: %w", bootVarName(number), err)
	}

	return prependBootOrder(number)
}

func firstFreeNumber() (uint16, error) {
	entries, err := List()
	if err != nil {
		return 0, err
	}
	used := make(map[uint16]bool, len(entries))
	for _, e := range entries {
		used[e.Number] = true
	}
	for n := uint16(0); n < 0xFFFF; n++ {
		if !used[n] {
			return n, nil
		}
	}
	return 0, fmt.Errorf("no free boot entry number")
}

func prependBootOrder(number uint16) error {
	order, _, err := efi.ReadVariable(bootOrderVar, efi.GlobalVariable)
	if err != nil {
		order = nil
	}
	newOrder := append(encodeUint16(number), order...)
	return efi.WriteVariable(bootOrderVar, efi.GlobalVariable,
		efi.AttributeNonVolatile|efi.AttributeBootserviceAccess|efi.AttributeRuntimeAccess, newOrder)
}
