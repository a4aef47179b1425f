// Package dom is a minimal headless document for hosting rendered markup.
//
// Every Document is independent. Nothing in this package is global so concurrent
// renders never observe each other's nodes.
package dom

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const blankDocument = "<!DOCTYPE html><body></body>"

type Document struct {
	doc *goquery.Document
}

func NewDocument() (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(blankDocument))
	if err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}
	return &Document{doc: doc}, nil
}

func (d *Document) Body() *Element {
	return &Element{sel: d.doc.Find("body").First()}
}

// CreateElement returns a new element that is not attached to the document tree.
func (d *Document) CreateElement(tag string) *Element {
	n := &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Lookup([]byte(tag)),
		Data:     tag,
	}
	return &Element{sel: goquery.NewDocumentFromNode(n).Selection}
}

type Element struct {
	sel *goquery.Selection
}

func (e *Element) node() *html.Node {
	if e == nil || e.sel == nil || e.sel.Length() == 0 {
		return nil
	}
	return e.sel.Get(0)
}

func (e *Element) TagName() string {
	n := e.node()
	if n == nil {
		return ""
	}
	return n.Data
}

// SetInnerHTML replaces the children of e with the parsed markup.
// The markup is parsed in the context of e, so svg content keeps its namespace.
func (e *Element) SetInnerHTML(markup string) (err error) {
	if e.node() == nil {
		return errors.New("cannot set inner html of an empty element")
	}
	// goquery panics when the fragment cannot be parsed.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to set inner html: %v", r)
		}
	}()
	e.sel.SetHtml(markup)
	return nil
}

func (e *Element) InnerHTML() (string, error) {
	return e.sel.Html()
}

// QuerySelector returns the first descendant matching the CSS selector or nil.
func (e *Element) QuerySelector(selector string) *Element {
	if e.node() == nil {
		return nil
	}
	found := e.sel.Find(selector).First()
	if found.Length() == 0 {
		return nil
	}
	return &Element{sel: found}
}

func (e *Element) FirstElementChild() *Element {
	if e.node() == nil {
		return nil
	}
	first := e.sel.Children().First()
	if first.Length() == 0 {
		return nil
	}
	return &Element{sel: first}
}

func (e *Element) SetAttribute(key, value string) {
	e.sel.SetAttr(key, value)
}

func (e *Element) Attribute(key string) (string, bool) {
	return e.sel.Attr(key)
}

func (e *Element) RemoveAttribute(key string) {
	e.sel.RemoveAttr(key)
}

// AppendChild moves child under e.
func (e *Element) AppendChild(child *Element) {
	e.sel.AppendSelection(child.sel)
}

// OuterHTML serializes e including its own tag.
func (e *Element) OuterHTML() (string, error) {
	if e.node() == nil {
		return "", errors.New("cannot serialize an empty element")
	}
	return goquery.OuterHtml(e.sel)
}
