package normalize

import (
	_ "embed"
	"os"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed sectors.yaml
var defaultSectorsYAML []byte

// Sector is one allow-listed activity code.
type Sector struct {
	Code     string   `yaml:"code"`
	Label    string   `yaml:"label"`
	Keywords []string `yaml:"keywords"`
}

// Sectors is the ordered sector allow-list.
type Sectors struct {
	list   []Sector
	byCode map[string]int
}

type sectorsFile struct {
	Sectors []Sector `yaml:"sectors"`
}

// DefaultSectors returns the built-in allow-list.
func DefaultSectors() *Sectors {
	s, err := ParseSectors(defaultSectorsYAML)
	if err != nil {
		panic(err)
	}
	return s
}

// LoadSectors reads an allow-list file. An empty path yields the default list.
func LoadSectors(path string) (*Sectors, error) {
	if path == "" {
		return DefaultSectors(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "normalize: read sectors file %s", path)
	}
	return ParseSectors(data)
}

// ParseSectors parses an allow-list document. Codes are canonicalised and
// keywords accent-folded.
func ParseSectors(data []byte) (*Sectors, error) {
	var f sectorsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "normalize: parse sectors")
	}
	if len(f.Sectors) == 0 {
		return nil, eris.New("normalize: sectors list is empty")
	}

	s := &Sectors{byCode: make(map[string]int, len(f.Sectors))}
	for _, sec := range f.Sectors {
		code, ok := CanonicalNAF(sec.Code)
		if !ok {
			return nil, eris.Errorf("normalize: invalid sector code %q", sec.Code)
		}
		if _, dup := s.byCode[code]; dup {
			return nil, eris.Errorf("normalize: duplicate sector code %q", code)
		}
		sec.Code = code
		kws := make([]string, 0, len(sec.Keywords))
		for _, kw := range sec.Keywords {
			kw, prefix := strings.CutSuffix(strings.TrimSpace(kw), "*")
			if kw = Fold(kw); kw != "" {
				if prefix {
					kw += "*"
				}
				kws = append(kws, kw)
			}
		}
		sec.Keywords = kws
		s.byCode[code] = len(s.list)
		s.list = append(s.list, sec)
	}
	return s, nil
}

// Codes returns the allow-listed codes in list order.
func (s *Sectors) Codes() []string {
	out := make([]string, len(s.list))
	for i, sec := range s.list {
		out[i] = sec.Code
	}
	return out
}

// Len returns the number of sectors.
func (s *Sectors) Len() int { return len(s.list) }

// ByCode looks up a canonical code.
func (s *Sectors) ByCode(code string) (Sector, bool) {
	i, ok := s.byCode[code]
	if !ok {
		return Sector{}, false
	}
	return s.list[i], true
}

// Match returns the first sector, in list order, with a keyword found in the
// given texts.
func (s *Sectors) Match(texts ...string) (Sector, bool) {
	folded := make([]string, 0, len(texts))
	for _, t := range texts {
		if f := Fold(t); f != "" {
			folded = append(folded, " "+f+" ")
		}
	}
	if len(folded) == 0 {
		return Sector{}, false
	}
	for _, sec := range s.list {
		for _, kw := range sec.Keywords {
			for _, t := range folded {
				if containsWord(t, kw) {
					return sec, true
				}
			}
		}
	}
	return Sector{}, false
}

// containsWord reports whether kw occurs in padded text as a whole word,
// optionally followed by a plural "s" or "x". A keyword ending in "*" only
// needs to start a word.
func containsWord(padded, kw string) bool {
	kw, prefix := strings.CutSuffix(kw, "*")
	idx := 0
	for {
		i := strings.Index(padded[idx:], kw)
		if i < 0 {
			return false
		}
		pos := idx + i
		if pos == 0 || !isWordByte(padded[pos-1]) {
			if prefix || wordEndsAt(padded, pos+len(kw)) {
				return true
			}
		}
		idx = pos + 1
	}
}

// wordEndsAt reports whether a word ends at end, allowing one plural letter.
func wordEndsAt(padded string, end int) bool {
	if end >= len(padded) || !isWordByte(padded[end]) {
		return true
	}
	if c := padded[end]; c == 's' || c == 'x' {
		return end+1 >= len(padded) || !isWordByte(padded[end+1])
	}
	return false
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}

var nafRe = regexp.MustCompile(`^(\d{2})\.?(\d{2})([A-Za-z])$`)

// CanonicalNAF converts "1082Z", "10.82z" or " 10.82 Z " to "10.82Z".
func CanonicalNAF(code string) (string, bool) {
	code = strings.ReplaceAll(strings.TrimSpace(code), " ", "")
	m := nafRe.FindStringSubmatch(code)
	if m == nil {
		return "", false
	}
	return m[1] + "." + m[2] + strings.ToUpper(m[3]), true
}
