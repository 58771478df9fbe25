package coldb

import (
	"github.com/submergedb/coldb/internal/ioutil"
)

// There are two flavours of chunks: dict-entry and dict-code.

type dictEntryChunkMeta struct {
	anyBinLarge bool
	valTy       *wordTy
	binLenTy    *wordTy
	binOffTy    *wordTy
}

// writeDictEntryChunk writes each component of up to ChunkRows dictionary
// entries as a frame-of-reference base followed by fixed-width words.
func (tw *trackWriter) writeDictEntryChunk(chunkNum int, comps [][]int64) error {
	tw.w.PushContext(chunkNum)
	defer tw.w.PopContext()

	var meta dictEntryChunkMeta
	meta.anyBinLarge = len(comps) == largeBinComponents
	for c, vals := range comps {
		if len(comps) > 1 {
			tw.w.PushContext(componentName(tw.meta.typ, c))
		}
		base, ty := selectMinAndTy(vals)
		if c == componentBinHash {
			ty = word2
		}
		deltas := make([]uint64, len(vals))
		for i, v := range vals {
			deltas[i] = uint64(v) - base
		}
		if err := ioutil.WriteNum(tw.w, "min", int64(base)); err != nil {
			return err
		}
		if err := tw.w.WriteWords("words", deltas, ty.len()); err != nil {
			return err
		}
		switch c {
		case componentValue:
			meta.valTy = &ty
		case componentBinLen:
			meta.binLenTy = &ty
		case componentBinOffset:
			meta.binOffTy = &ty
		}
		if len(comps) > 1 {
			tw.w.PopContext()
		}
	}
	return tw.noteDictEntryChunkFinished(&meta)
}

type dictCodeChunkMeta struct {
	twoBytes    bool
	runCoded    bool
	minDictCode uint16
	maxDictCode uint16
}

// writeDictCodeChunk writes the dict codes of up to ChunkRows rows, run-end
// encoded when that is smaller.
func (tw *trackWriter) writeDictCodeChunk(chunkNum int, codes []uint16) error {
	tw.w.PushContext(chunkNum)
	defer tw.w.PopContext()

	meta := dictCodeChunkMeta{minDictCode: 0xffff}
	for _, code := range codes {
		if code > 0xff {
			meta.twoBytes = true
		}
		meta.minDictCode = min(meta.minDictCode, code)
		meta.maxDictCode = max(meta.maxDictCode, code)
	}

	runVals, runEnds, err := runEndEncode(codes)
	if err != nil {
		return err
	}
	codeWidth := 1
	if meta.twoBytes {
		codeWidth = 2
	}
	if len(runEnds)*(codeWidth+2) < len(codes)*codeWidth {
		meta.runCoded = true
		if err := ioutil.WriteNum(tw.w, "runs", uint16(len(runVals))); err != nil {
			return err
		}
		if err := writeCodeLanes(tw.w, runVals, meta.twoBytes); err != nil {
			return err
		}
		if err := ioutil.WriteNums(tw.w, "run_ends", runEnds); err != nil {
			return err
		}
	} else if err := writeCodeLanes(tw.w, codes, meta.twoBytes); err != nil {
		return err
	}
	return tw.noteDictCodeChunkFinished(&meta)
}

// writeCodeLanes writes the high bytes of every code, if any are needed,
// then the low bytes.
func writeCodeLanes(w *ioutil.Writer, codes []uint16, twoBytes bool) error {
	w.PushContext("code_lanes")
	defer w.PopContext()
	if twoBytes {
		if err := ioutil.WriteLane(w, "hi_lane", 0, codes); err != nil {
			return err
		}
	}
	return ioutil.WriteLane(w, "lo_lane", 1, codes)
}

// readCodeLanes is the inverse of writeCodeLanes.
func readCodeLanes(r *ioutil.Reader, n int, twoBytes bool) ([]uint16, error) {
	codes := make([]uint16, n)
	if twoBytes {
		hi, err := r.ReadBytes(int64(n))
		if err != nil {
			return nil, err
		}
		for i, b := range hi {
			codes[i] = uint16(b) << 8
		}
	}
	lo, err := r.ReadBytes(int64(n))
	if err != nil {
		return nil, err
	}
	for i, b := range lo {
		codes[i] |= uint16(b)
	}
	return codes, nil
}
