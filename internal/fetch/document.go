package fetch

import (
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// Document is a parsed HTML page together with the URL it was served from.
type Document struct {
	Root *html.Node
	Base *url.URL
}

// Parse reads an HTML document. base is used to resolve relative links and
// may be nil.
func Parse(r io.Reader, base *url.URL) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	return &Document{Root: root, Base: base}, nil
}

// Matcher selects element nodes.
type Matcher func(*html.Node) bool

// Find returns every element under the root accepted by m, in document order.
func (d *Document) Find(m Matcher) []*html.Node {
	var out []*html.Node
	walk(d.Root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && m(n) {
			out = append(out, n)
		}
		return true
	})
	return out
}

// First returns the first element accepted by m, or nil.
func (d *Document) First(m Matcher) *html.Node {
	var found *html.Node
	walk(d.Root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && m(n) {
			found = n
			return false
		}
		return true
	})
	return found
}

// Resolve turns href into an absolute URL against the document's base.
func (d *Document) Resolve(href string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", err
	}
	if d.Base == nil {
		return ref.String(), nil
	}
	return d.Base.ResolveReference(ref).String(), nil
}

func walk(n *html.Node, visit func(*html.Node) bool) bool {
	if !visit(n) {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walk(c, visit) {
			return false
		}
	}
	return true
}

// Attr returns the value of the named attribute.
func Attr(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

// Tag matches elements by tag name.
func Tag(name string) Matcher {
	return func(n *html.Node) bool {
		return n.Data == name
	}
}

// HasAttr matches elements carrying a non-empty attribute.
func HasAttr(key string) Matcher {
	return func(n *html.Node) bool {
		v, ok := Attr(n, key)
		return ok && v != ""
	}
}

// AttrEquals matches elements whose attribute equals val.
func AttrEquals(key, val string) Matcher {
	return func(n *html.Node) bool {
		v, ok := Attr(n, key)
		return ok && v == val
	}
}

// HasClass matches elements whose class list contains class.
func HasClass(class string) Matcher {
	return func(n *html.Node) bool {
		v, ok := Attr(n, "class")
		if !ok {
			return false
		}
		for _, c := range strings.Fields(v) {
			if c == class {
				return true
			}
		}
		return false
	}
}

// All matches elements accepted by every matcher.
func All(ms ...Matcher) Matcher {
	return func(n *html.Node) bool {
		for _, m := range ms {
			if !m(n) {
				return false
			}
		}
		return true
	}
}

// Any matches elements accepted by at least one matcher.
func Any(ms ...Matcher) Matcher {
	return func(n *html.Node) bool {
		for _, m := range ms {
			if m(n) {
				return true
			}
		}
		return false
	}
}
