package pubmed

import "encoding/json"

// ESearchResponse is the JSON envelope returned by esearch.fcgi with
// retmode=json.
type ESearchResponse struct {
	Result *ESearchResult `json:"esearchresult"`
}

// ESearchResult contains the matching ids and the total hit count.
type ESearchResult struct {
	Count     string          `json:"count"`
	RetMax    string          `json:"retmax"`
	RetStart  string          `json:"retstart"`
	IDList    []string        `json:"idlist"`
	ErrorList *ESearchErrors  `json:"errorlist,omitempty"`
	Warnings  json.RawMessage `json:"warninglist,omitempty"`
}

// ESearchErrors lists query terms upstream could not resolve.
type ESearchErrors struct {
	PhrasesNotFound []string `json:"phrasesnotfound"`
	FieldsNotFound  []string `json:"fieldsnotfound"`
}

// ESummaryResponse is the JSON envelope returned by esummary.fcgi with
// retmode=json.
//
// Result is keyed by record id plus a "uids" key listing the ids in request
// order, so entries are decoded one at a time.
type ESummaryResponse struct {
	Result map[string]json.RawMessage `json:"result"`
}

// DocSummary is a single esummary record.
type DocSummary struct {
	UID             string          `json:"uid"`
	Title           string          `json:"title"`
	FullJournalName string          `json:"fulljournalname"`
	Source          string          `json:"source"`
	PubDate         string          `json:"pubdate"`
	Authors         []SummaryAuthor `json:"authors"`
	Error           string          `json:"error,omitempty"`
}

// SummaryAuthor is one entry of a DocSummary author list.
type SummaryAuthor struct {
	Name     string `json:"name"`
	AuthType string `json:"authtype"`
}
