package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/Binject/debug/pe"
	"github.com/fatih/color"

	"gamehook/pkg/hashes"
	"gamehook/pkg/image"
	"gamehook/pkg/paths"
	"gamehook/pkg/resolve"
)

var (
	colorOK   = color.New(color.FgGreen).SprintFunc()
	colorFail = color.New(color.FgRed, color.Bold).SprintFunc()
	colorAddr = color.New(color.Faint).SprintfFunc()
)

func main() {
	var (
		hashName  = flag.String("hash", "", "Print the identifier hash of a name")
		addrsPath = flag.String("addresses", "", "Validate an address database file")
		symsPath  = flag.String("symbols", "", "Validate a symbol database file")
		imagePath = flag.String("image", "", "Inspect a PE image's hookable segments")
		verbose   = flag.Bool("verbose", false, "Enable verbose output")
	)

	flag.Parse()

	if *hashName == "" && *addrsPath == "" && *symsPath == "" && *imagePath == "" {
		fmt.Println("Usage: gamehook [-hash <name>] [-addresses <file>] [-symbols <file>] [-image <file>] [-verbose]")
		fmt.Println()
		fmt.Println("Operations (any combination):")
		fmt.Println("  -hash:      Print the 32-bit identifier hash of a name")
		fmt.Println("  -addresses: Load and validate an address database file")
		fmt.Println("  -symbols:   Load and validate a symbol database file")
		fmt.Println("  -image:     Inspect a PE image and report its hookable segments")
		fmt.Println()
		fmt.Println("Optional parameters:")
		fmt.Println("  -verbose:   Enable verbose output")
		fmt.Println()
		fmt.Println("Database files default to addresses.json and symbols.json next to the")
		fmt.Println("executable; GAMEHOOK_ADDRESSES and GAMEHOOK_SYMBOLS override them.")
		return
	}

	failed := false

	if *hashName != "" {
		fmt.Printf("%s = %s\n", *hashName, colorAddr("0x%08X", hashes.FNV1a32(*hashName)))
	}

	if *addrsPath != "" {
		if err := checkAddresses(*addrsPath, *verbose); err != nil {
			log.Printf("[ERROR] %v\n", err)
			failed = true
		}
	}

	if *symsPath != "" {
		if err := checkSymbols(*symsPath, *verbose); err != nil {
			log.Printf("[ERROR] %v\n", err)
			failed = true
		}
	}

	if *imagePath != "" {
		if err := dumpImage(*imagePath, *verbose); err != nil {
			log.Printf("[ERROR] %v\n", err)
			failed = true
		}
	}

	if failed {
		os.Exit(1)
	}
}

func checkAddresses(path string, verbose bool) error {
	if verbose {
		log.Printf("[INFO] loading address database from %s\n", path)
	}
	db, err := resolve.LoadAddressDB(path)
	if err != nil {
		fmt.Printf("%s %s\n", colorFail("FAIL"), path)
		return err
	}
	fmt.Printf("%s %s: %d address entr%s\n", colorOK("OK"), path, db.Len(), plural(db.Len(), "y", "ies"))
	return nil
}

func checkSymbols(path string, verbose bool) error {
	if verbose {
		log.Printf("[INFO] loading symbol database from %s\n", path)
	}
	db, err := resolve.LoadSymbolDB(path)
	if err != nil {
		fmt.Printf("%s %s\n", colorFail("FAIL"), path)
		return err
	}
	fmt.Printf("%s %s: %d symbol entr%s\n", colorOK("OK"), path, db.Len(), plural(db.Len(), "y", "ies"))
	return nil
}

// dumpImage opens a PE file from disk and checks it exposes the three
// segments the resolver needs. The on-disk image has no slide, so the
// reported addresses are the link-time ones.
func dumpImage(path string, verbose bool) error {
	f, err := pe.Open(path)
	if err != nil {
		return fmt.Errorf("cannot open %s as a PE image: %w", path, err)
	}
	defer f.Close()

	var preferredBase uint64
	switch hdr := f.OptionalHeader.(type) {
	case *pe.OptionalHeader64:
		preferredBase = hdr.ImageBase
	case *pe.OptionalHeader32:
		preferredBase = uint64(hdr.ImageBase)
	default:
		return fmt.Errorf("%s has no optional header", path)
	}

	sections := make([]image.Section, 0, len(f.Sections))
	for _, s := range f.Sections {
		if verbose {
			log.Printf("[INFO] section %-8s rva=0x%08X size=0x%X\n", s.Name, s.VirtualAddress, s.VirtualSize)
		}
		sections = append(sections, image.Section{Name: s.Name, VirtualAddress: s.VirtualAddress})
	}

	img, err := image.New(uintptr(preferredBase), uintptr(preferredBase), sections)
	if err != nil {
		fmt.Printf("%s %s\n", colorFail("FAIL"), path)
		return err
	}

	fmt.Printf("%s %s: preferred base %s\n", colorOK("OK"), path, colorAddr("0x%X", preferredBase))
	for seg := image.SegText; seg <= image.SegData; seg++ {
		rva, _ := img.Segment(seg)
		fmt.Printf("  %-6s %s\n", seg, colorAddr("0x%X", rva))
	}

	if verbose {
		p, err := paths.New()
		if err == nil {
			log.Printf("[INFO] default databases: %s, %s\n", p.AddressesFile(), p.SymbolsFile())
		}
	}
	return nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
