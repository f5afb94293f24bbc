package media

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"path"
	"strings"
)

// Format is a sniffed image container.
type Format string

const (
	FormatUnknown Format = ""
	FormatJPEG    Format = "jpeg"
	FormatPNG     Format = "png"
	FormatGIF     Format = "gif"
	FormatWebP    Format = "webp"
	FormatBMP     Format = "bmp"
)

// Sniff identifies data by its magic bytes.
func Sniff(data []byte) Format { return defaultTable.Sniff(data) }

// Sniff identifies data by the magic prefixes in the table.
func (t *VariantTable) Sniff(data []byte) Format {
	for name, def := range t.Formats {
		for _, m := range def.Magic {
			prefix, err := hex.DecodeString(m)
			if err != nil || !bytes.HasPrefix(data, prefix) {
				continue
			}
			if name == string(FormatWebP) && (len(data) < 12 || string(data[8:12]) != "WEBP") {
				continue
			}
			return Format(name)
		}
	}
	return FormatUnknown
}

// FormatFromURL guesses the format from the URL's file extension.
func FormatFromURL(rawURL string) Format {
	p := rawURL
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(p)), ".")
	if ext == "" {
		return FormatUnknown
	}
	for name, def := range defaultTable.Formats {
		for _, e := range def.Extensions {
			if e == ext {
				return Format(name)
			}
		}
	}
	return FormatUnknown
}

// IsAnimated reports whether data is a multi-frame GIF or an animated WebP.
func IsAnimated(data []byte) bool {
	switch Sniff(data) {
	case FormatGIF:
		return gifFrames(data) > 1 || bytes.Contains(data, []byte("NETSCAPE2.0"))
	case FormatWebP:
		return webpAnimated(data)
	}
	return false
}

// gifFrames counts image descriptors, stopping at two.
func gifFrames(data []byte) int {
	if len(data) < 13 {
		return 0
	}
	pos := 13
	if data[10]&0x80 != 0 {
		pos += 3 << (int(data[10]&0x07) + 1)
	}
	frames := 0
	for pos < len(data) && frames < 2 {
		switch data[pos] {
		case 0x2C:
			frames++
			pos += 10
			if pos > len(data) {
				return frames
			}
			if flags := data[pos-1]; flags&0x80 != 0 {
				pos += 3 << (int(flags&0x07) + 1)
			}
			pos++ // LZW minimum code size
			pos = skipSubBlocks(data, pos)
		case 0x21:
			pos = skipSubBlocks(data, pos+2)
		case 0x3B:
			return frames
		default:
			return frames
		}
	}
	return frames
}

func skipSubBlocks(data []byte, pos int) int {
	for pos < len(data) {
		n := int(data[pos])
		pos++
		if n == 0 {
			return pos
		}
		pos += n
	}
	return pos
}

func webpAnimated(data []byte) bool {
	// RIFF header (12) then chunks of fourcc + little-endian size.
	pos := 12
	for pos+8 <= len(data) {
		fourcc := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		switch fourcc {
		case "VP8X":
			return pos+8 < len(data) && data[pos+8]&0x02 != 0
		case "ANIM", "ANMF":
			return true
		}
		pos += 8 + size + size&1
	}
	return false
}
