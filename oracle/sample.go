package oracle

import (
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/microcosm-cc/bluemonday"
)

const maxSampleLen = 800

// Sampler turns a container's outer HTML into the compact markdown sample
// the oracle is prompted with. Untrusted page HTML is sanitised first so
// script bodies and event handlers never reach a prompt.
type Sampler struct {
	policy *bluemonday.Policy
	conv   *converter.Converter
}

// NewSampler builds a Sampler with the UGC sanitisation policy.
func NewSampler() *Sampler {
	return &Sampler{
		policy: bluemonday.UGCPolicy(),
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
	}
}

// Sample sanitises and converts outer HTML to markdown, capped at a prompt
// friendly length. Falls back to the raw text on conversion failure; an
// empty input yields "".
func (s *Sampler) Sample(outerHTML string) string {
	if strings.TrimSpace(outerHTML) == "" {
		return ""
	}
	clean := s.policy.Sanitize(outerHTML)
	md, err := s.conv.ConvertString(clean)
	if err != nil {
		md = clean
	}
	md = strings.TrimSpace(md)
	if len(md) > maxSampleLen {
		md = md[:maxSampleLen]
	}
	return md
}
