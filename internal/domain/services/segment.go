package services

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// DefaultSegmentSize is the default upper bound, in bytes, of one narrative
// segment handed to the pipeline.
const DefaultSegmentSize = 4000

// SplitSegments splits narrative text into segments on paragraph
// boundaries. Segments do not overlap: every paragraph is extracted exactly
// once. A paragraph longer than size becomes a segment of its own.
func SplitSegments(text string, size int) []string {
	if size <= 0 {
		size = DefaultSegmentSize
	}
	var segments []string
	s := &segmenter{size: size}
	for _, para := range strings.Split(text, "\n\n") {
		_ = s.add(strings.TrimSpace(para), func(seg string) error {
			segments = append(segments, seg)
			return nil
		})
	}
	if s.current.Len() > 0 {
		segments = append(segments, s.current.String())
	}
	return segments
}

// ScanSegments reads narrative text from r and calls fn once per segment, in
// order. Memory use is bounded by the segment size rather than the input.
func ScanSegments(r io.Reader, size int, fn func(string) error) error {
	if size <= 0 {
		size = DefaultSegmentSize
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	s := &segmenter{size: size}
	var para strings.Builder
	flushPara := func() error {
		text := strings.TrimSpace(para.String())
		para.Reset()
		return s.add(text, fn)
	}

	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			if err := flushPara(); err != nil {
				return err
			}
			continue
		}
		if para.Len() > 0 {
			para.WriteString("\n")
		}
		para.WriteString(line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	if err := flushPara(); err != nil {
		return err
	}
	if s.current.Len() > 0 {
		return fn(s.current.String())
	}
	return nil
}

type segmenter struct {
	size    int
	current strings.Builder
}

// add appends a paragraph, emitting the current segment first when the
// paragraph would not fit.
func (s *segmenter) add(para string, emit func(string) error) error {
	if para == "" {
		return nil
	}
	if s.current.Len() > 0 && s.current.Len()+len(para)+2 > s.size {
		if err := emit(s.current.String()); err != nil {
			return err
		}
		s.current.Reset()
	}
	if s.current.Len() > 0 {
		s.current.WriteString("\n\n")
	}
	s.current.WriteString(para)
	return nil
}
