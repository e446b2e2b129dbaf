package surface

// Compose attaches optional capabilities to a document. A nil capability is
// left off so that type assertions on the result fail for it.
func Compose(doc Document, p Preparer, ts Typesetter) Document {
	switch {
	case p != nil && ts != nil:
		return struct {
			Document
			Preparer
			Typesetter
		}{doc, p, ts}
	case p != nil:
		return struct {
			Document
			Preparer
		}{doc, p}
	case ts != nil:
		return struct {
			Document
			Typesetter
		}{doc, ts}
	}
	return doc
}
