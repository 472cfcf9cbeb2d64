package server

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/hlt-mt/smarterp/internal/align"
	"github.com/hlt-mt/smarterp/internal/glossary"
)

// Control actions sent by clients.
const (
	actionStart    = "start"
	actionChunk    = "chunk"
	actionEnd      = "end"
	actionShutdown = "shutdown"
)

// Response status codes.
const (
	statusOK    = 0
	statusError = 1
)

// timeStampLayout is ISO 8601 local time with second precision.
const timeStampLayout = "2006-01-02T15:04:05"

// inbound is the envelope of every client message. Data is decoded per
// action.
type inbound struct {
	Action *string         `json:"action"`
	Data   json.RawMessage `json:"data"`
}

type glossItem struct {
	Src string `json:"src"`
	Tgt string `json:"tgt"`
}

type startData struct {
	Src            *string      `json:"src"`
	Tgt            *string      `json:"tgt"`
	BilingualGloss *[]glossItem `json:"bilingual_gloss"`
}

func (d startData) valid() bool {
	return d.Src != nil && d.Tgt != nil && d.BilingualGloss != nil
}

// entries converts the bilingual glossary payload into glossary entries. A
// target may list several variants separated by commas.
func (d startData) entries() []glossary.Entry {
	if d.BilingualGloss == nil {
		return nil
	}
	out := make([]glossary.Entry, 0, len(*d.BilingualGloss))
	for _, g := range *d.BilingualGloss {
		var targets []string
		for t := range strings.SplitSeq(g.Tgt, ",") {
			if t = strings.TrimSpace(t); t != "" {
				targets = append(targets, t)
			}
		}
		out = append(out, glossary.Entry{Source: strings.TrimSpace(g.Src), Targets: targets})
	}
	return out
}

type chunkData struct {
	Audio *string `json:"audio"`
}

// response acknowledges a control action.
type response struct {
	Type   string `json:"type"`
	Status int    `json:"status"`
	Info   string `json:"info"`
}

func okResponse() response { return response{Type: "response", Status: statusOK, Info: ""} }

func errorResponse(info string) response {
	return response{Type: "response", Status: statusError, Info: info}
}

// resultInfo carries the aligned pairs of one processed window.
type resultInfo struct {
	TimeStamp string          `json:"time_stamp"`
	NEList    []align.Pair    `json:"ne_list"`
	TermList  []glossary.Term `json:"term_list"`
}

// result is sent once per processed window.
type result struct {
	Type   string     `json:"type"`
	Status int        `json:"status"`
	Info   resultInfo `json:"info"`
}

func newResult(now time.Time, entities []align.Pair, terms []glossary.Term) result {
	if entities == nil {
		entities = []align.Pair{}
	}
	if terms == nil {
		terms = []glossary.Term{}
	}
	return result{
		Type:   "result",
		Status: statusOK,
		Info: resultInfo{
			TimeStamp: now.Format(timeStampLayout),
			NEList:    entities,
			TermList:  terms,
		},
	}
}
