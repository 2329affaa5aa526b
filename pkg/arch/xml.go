package arch

import (
	"bytes"
	"fmt"
)

// GDB target description generation, see:
// https://sourceware.org/gdb/onlinedocs/gdb/Target-Descriptions.html
//
// The main document only includes the per-feature files; the debugger
// fetches each of them as a separate qXfer annex.

// GenerateTargetXML produces the main target.xml document for desc.
func GenerateTargetXML(desc *GDBDescriptor) []byte {
	var buf bytes.Buffer
	buf.WriteString("<?xml version=\"1.0\"?>\n")
	buf.WriteString("<!DOCTYPE target SYSTEM \"gdb-target.dtd\">\n")
	buf.WriteString("<target version=\"1.0\">\n")
	fmt.Fprintf(&buf, "<architecture>%s</architecture>\n", desc.Architecture)
	if desc.OSABI != "" {
		fmt.Fprintf(&buf, "<osabi>%s</osabi>\n", desc.OSABI)
	}
	for _, feature := range desc.Features {
		fmt.Fprintf(&buf, "<xi:include href=\"%s\"/>\n", feature.FileName)
	}
	buf.WriteString("</target>\n")
	return buf.Bytes()
}

// GenerateFeatureXML produces the feature document identified by fileName,
// nil if desc has no feature with that file name.
func GenerateFeatureXML(desc *GDBDescriptor, fileName string) []byte {
	for _, feature := range desc.Features {
		if feature.FileName != fileName {
			continue
		}
		var buf bytes.Buffer
		buf.WriteString("<?xml version=\"1.0\"?>\n")
		buf.WriteString("<!DOCTYPE feature SYSTEM \"gdb-target.dtd\">\n")
		fmt.Fprintf(&buf, "<feature name=\"%s\">\n", feature.Name)
		for _, reg := range feature.Regs {
			fmt.Fprintf(&buf, "<reg name=\"%s\" bitsize=\"%d\" type=\"%s\" regnum=\"%d\" group=\"%s\"/>\n",
				reg.Name, reg.BitSize, reg.GDBType, reg.GDBRegisterNumber, reg.GDBGroup)
		}
		buf.WriteString("</feature>\n")
		return buf.Bytes()
	}
	return nil
}
