package confirmation

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// mobileAuthRequiredMarker is the text steamcommunity.com serves instead
// of the confirmation list when the mobile-scheme redirect that's
// supposed to hand off to the authenticator app fails — effectively a
// "you're not really logged in on mobile" signal. Spec.md §4.E treats
// this as a NotLoggedIn / session-expired condition.
const mobileAuthRequiredMarker = "This page requires your mobile device to be set up for Steam Guard Mobile Authenticator"

const (
	emptyListSelector = "#mobileconf_empty"
	doneClass         = "mobileconf_done"
	entrySelector     = ".mobileconf_list_entry"
)

// parseList implements spec.md §4.E's HTML parse: named extractors keyed
// to the documented data-* attributes, failing fast if any required one
// is missing, per the REDESIGN FLAGS note in spec.md §9.
func parseList(body []byte) ([]Entry, error) {
	if bytes.Contains(body, []byte(mobileAuthRequiredMarker)) {
		return nil, ErrNotLoggedIn
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	empty := doc.Find(emptyListSelector)
	if empty.Length() > 0 {
		if hasClass(empty, doneClass) {
			msg := strings.TrimSpace(empty.Find(".mobileconf_empty_details").Text())
			if msg == "" {
				msg = strings.TrimSpace(empty.Text())
			}
			return nil, ErrConfirmationFailed{Message: msg}
		}
		return []Entry{}, nil
	}

	nodes := doc.Find(entrySelector)
	entries := make([]Entry, 0, nodes.Length())
	var parseErr error
	nodes.EachWithBreak(func(_ int, node *goquery.Selection) bool {
		e, err := parseEntry(node)
		if err != nil {
			parseErr = err
			return false
		}
		entries = append(entries, e)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}

	return entries, nil
}

func hasClass(sel *goquery.Selection, class string) bool {
	classAttr, _ := sel.Attr("class")
	for _, c := range strings.Fields(classAttr) {
		if c == class {
			return true
		}
	}
	return false
}

func parseEntry(node *goquery.Selection) (Entry, error) {
	confID, ok := node.Attr("data-confid")
	if !ok || confID == "" {
		return Entry{}, ErrMalformedResponse{Attr: "data-confid"}
	}
	creator, ok := node.Attr("data-creator")
	if !ok || creator == "" {
		return Entry{}, ErrMalformedResponse{Attr: "data-creator"}
	}
	confKey, ok := node.Attr("data-key")
	if !ok || confKey == "" {
		return Entry{}, ErrMalformedResponse{Attr: "data-key"}
	}
	typeStr, ok := node.Attr("data-type")
	if !ok || typeStr == "" {
		return Entry{}, ErrMalformedResponse{Attr: "data-type"}
	}
	typ, err := strconv.Atoi(typeStr)
	if err != nil {
		return Entry{}, ErrMalformedResponse{Attr: "data-type"}
	}

	// icon_url is cosmetic and not one of the seven required
	// attributes/children spec.md §4.E counts — missing it never fails
	// the parse.
	icon, _ := node.Find(".mobileconf_list_entry_icon img").Attr("src")

	title := strings.TrimSpace(node.Find(".mobileconf_list_entry_description>div:nth-child(1)").Text())
	if title == "" {
		return Entry{}, ErrMalformedResponse{Attr: "title"}
	}
	receiving := strings.TrimSpace(node.Find(".mobileconf_list_entry_description>div:nth-child(2)").Text())
	if receiving == "" {
		return Entry{}, ErrMalformedResponse{Attr: "receiving"}
	}
	timeText := strings.TrimSpace(node.Find(".mobileconf_list_entry_description>div:nth-child(3)").Text())
	if timeText == "" {
		return Entry{}, ErrMalformedResponse{Attr: "time_text"}
	}

	return Entry{
		ConfID:    confID,
		Type:      typ,
		Creator:   creator,
		ConfKey:   confKey,
		Title:     title,
		Receiving: receiving,
		TimeText:  timeText,
		IconURL:   icon,
	}, nil
}
