package testutil

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// Generated bank layout. At 44 kHz one 440 Hz period is exactly 100 samples,
// so the loop is seamless.
const (
	sf2SampleRate = 44000
	sf2Period     = 100
	sf2Cycles     = 10
	sf2Padding    = 46 // Zero samples the format requires after every sample
	sf2RootKey    = 69
	sf2Amplitude  = 16000
)

// SoundFont 2 generator operators.
const (
	genReleaseVolEnv = 38
	genInstrument    = 41
	genSampleID      = 53
	genSampleModes   = 54
)

// SF2Options shapes a generated bank.
type SF2Options struct {
	// Layers is the number of instrument zones stacked on every key.
	Layers int
	// ReleaseSeconds is the volume envelope release time.
	ReleaseSeconds float64
}

// WriteSF2 writes a single-preset bank playing a looped sine to path.
func WriteSF2(t testing.TB, path string, opts SF2Options) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, BuildSF2(opts), 0o644))
}

// BuildSF2 returns the bytes of a bank with preset 0 on bank 0. Every key
// starts opts.Layers voices that loop until released.
func BuildSF2(opts SF2Options) []byte {
	layers := max(1, opts.Layers)
	release := int16(-12000)
	if opts.ReleaseSeconds > 0 {
		release = int16(math.Round(1200 * math.Log2(opts.ReleaseSeconds)))
	}

	frames := sf2Period * sf2Cycles
	wave := make([]int16, frames+sf2Padding)
	for i := range frames {
		wave[i] = int16(math.Round(sf2Amplitude * math.Sin(2*math.Pi*float64(i)/sf2Period)))
	}

	info := listChunk("INFO",
		chunk("ifil", le(uint16(2), uint16(1))),
		chunk("INAM", fixedString("Generated sine", 16)),
	)
	sdta := listChunk("sdta", chunk("smpl", le(wave)))

	var pbag, pgen, ibag, igen bytes.Buffer
	pbag.Write(le(uint16(0), uint16(0)))
	pgen.Write(le(uint16(genInstrument), uint16(0)))
	pbag.Write(le(uint16(1), uint16(0)))
	pgen.Write(le(uint16(0), uint16(0)))

	for i := range layers {
		ibag.Write(le(uint16(3*i), uint16(0)))
		igen.Write(le(uint16(genSampleModes), uint16(1)))
		igen.Write(le(uint16(genReleaseVolEnv), release))
		igen.Write(le(uint16(genSampleID), uint16(0)))
	}
	ibag.Write(le(uint16(3*layers), uint16(0)))
	igen.Write(le(uint16(0), uint16(0)))

	pdta := listChunk("pdta",
		chunk("phdr", append(presetHeader("Sine", 0), presetHeader("EOP", 1)...)),
		chunk("pbag", pbag.Bytes()),
		chunk("pmod", make([]byte, 10)),
		chunk("pgen", pgen.Bytes()),
		chunk("inst", append(instrumentHeader("Sine", 0), instrumentHeader("EOI", uint16(layers))...)),
		chunk("ibag", ibag.Bytes()),
		chunk("imod", make([]byte, 10)),
		chunk("igen", igen.Bytes()),
		chunk("shdr", append(sampleHeader("Sine", uint32(frames)), make([]byte, 46)...)),
	)

	body := append([]byte("sfbk"), info...)
	body = append(body, sdta...)
	body = append(body, pdta...)
	return chunk("RIFF", body)
}

func presetHeader(name string, bag uint16) []byte {
	b := fixedString(name, 20)
	// preset, bank, bag index, library, genre, morphology
	return append(b, le(uint16(0), uint16(0), bag, uint32(0), uint32(0), uint32(0))...)
}

func instrumentHeader(name string, bag uint16) []byte {
	return append(fixedString(name, 20), le(bag)...)
}

func sampleHeader(name string, frames uint32) []byte {
	b := fixedString(name, 20)
	// start, end, loop start, loop end, rate, root key, correction, link, type
	return append(b, le(uint32(0), frames, uint32(0), frames, uint32(sf2SampleRate),
		uint8(sf2RootKey), int8(0), uint16(0), uint16(1))...)
}

func listChunk(kind string, chunks ...[]byte) []byte {
	body := []byte(kind)
	for _, c := range chunks {
		body = append(body, c...)
	}
	return chunk("LIST", body)
}

func chunk(id string, body []byte) []byte {
	out := append([]byte(id), le(uint32(len(body)))...)
	out = append(out, body...)
	if len(body)%2 != 0 {
		out = append(out, 0)
	}
	return out
}

func fixedString(s string, n int) []byte {
	b := make([]byte, n)
	copy(b, s)
	return b
}

func le(values ...any) []byte {
	var buf bytes.Buffer
	for _, v := range values {
		_ = binary.Write(&buf, binary.LittleEndian, v)
	}
	return buf.Bytes()
}
