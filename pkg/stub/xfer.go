package stub

import (
	"bytes"
	"fmt"

	lru "github.com/hashicorp/golang-lru"

	"github.com/vigilo/vigilo/pkg/arch"
	"github.com/vigilo/vigilo/pkg/target"
)

// Feature documents never change for the lifetime of a process, so the
// generated XML is kept in a small cache keyed by annex.
const featureCacheSize = 8

// OnXferRead serves one page of a qXfer object. The full payload is
// computed (or fetched from the cache), the page at offset is cut out and
// last reports whether it is the final one.
func (d *DebugSession) OnXferRead(s wireSession, object, annex string, offset, length uint64) (buffer []byte, last bool, err error) {
	d.log.Debugf("object=%q annex=%q offset=%#x length=%#x", object, annex, offset, length)

	var payload []byte
	switch object {
	case "features":
		payload, err = d.featuresDocument(annex)
	case "auxv":
		payload, err = d.proc.AuxiliaryVector()
	case "threads":
		payload, err = d.threadsDocument()
	case "libraries-svr4":
		payload, err = d.librariesDocument()
	default:
		return nil, false, target.ErrUnsupported
	}
	if err != nil {
		return nil, false, err
	}

	return paginate(payload, offset, length)
}

// paginate cuts the page [offset, offset+length) out of payload; last is
// true on the final page.
func paginate(payload []byte, offset, length uint64) ([]byte, bool, error) {
	last := true
	if offset > uint64(len(payload)) {
		offset = uint64(len(payload))
	}
	buffer := payload[offset:]
	if uint64(len(buffer)) > length {
		buffer = buffer[:length]
		last = false
	}
	return buffer, last, nil
}

func (d *DebugSession) featuresDocument(annex string) ([]byte, error) {
	if d.featureCache == nil {
		d.featureCache, _ = lru.New(featureCacheSize)
	}
	if cached, ok := d.featureCache.Get(annex); ok {
		return cached.([]byte), nil
	}

	desc := d.proc.GDBRegistersDescriptor()
	var payload []byte
	if annex == "target.xml" {
		payload = arch.GenerateTargetXML(desc)
	} else {
		payload = arch.GenerateFeatureXML(desc, annex)
	}
	d.featureCache.Add(annex, payload)
	return payload, nil
}

func (d *DebugSession) threadsDocument() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("<threads>\n")
	d.proc.EnumerateThreads(func(thread target.Thread) {
		fmt.Fprintf(&buf, "<thread id=\"p%x.%x\" core=\"%d\"/>\n",
			d.proc.Pid(), thread.Tid(), thread.Core())
	})
	buf.WriteString("</threads>\n")
	return buf.Bytes(), nil
}

func (d *DebugSession) librariesDocument() ([]byte, error) {
	if !d.proc.IsELF() {
		return nil, target.ErrUnsupported
	}

	var libs bytes.Buffer
	var mainMapAddress uint64
	err := d.proc.EnumerateSharedLibraries(func(library target.SharedLibrary) {
		if library.Main {
			mainMapAddress = library.MapAddress
			return
		}
		fmt.Fprintf(&libs, "<library name=\"%s\" lm=\"0x%x\" l_addr=\"0x%x\" l_ld=\"0x%x\" />\n",
			library.Path, library.MapAddress, library.BaseAddress, library.LDAddress)
	})
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString("<library-list-svr4 version=\"1.0\"")
	if mainMapAddress != 0 {
		fmt.Fprintf(&buf, " main-lm=\"0x%x\"", mainMapAddress)
	}
	buf.WriteString(">\n")
	buf.Write(libs.Bytes())
	buf.WriteString("</library-list-svr4>")
	return buf.Bytes(), nil
}
