// Package classify defines the semantic categories of decoded payloads
// and the classifier collaborator contract. Classification itself is a
// pure, stateless function supplied by the embedding application; the
// session pipeline only depends on this interface.
package classify

// Category is the semantic class of a decoded payload.
type Category string

const (
	CategoryURL     Category = "url"
	CategoryWiFi    Category = "wifi"
	CategoryGeo     Category = "geo"
	CategoryPhone   Category = "phone"
	CategoryEmail   Category = "email"
	CategorySMS     Category = "sms"
	CategoryVCard   Category = "vcard"
	CategoryPayment Category = "payment"
	CategoryText    Category = "text"
	CategoryUnknown Category = "unknown"
)

// Classifier turns decoded text into a semantic category. It must be
// pure and side-effect free; an implementation that cannot classify a
// payload returns CategoryText.
type Classifier interface {
	Classify(text string) Category
}

// Func adapts a plain function to the Classifier interface.
type Func func(text string) Category

// Classify implements Classifier.
func (f Func) Classify(text string) Category {
	return f(text)
}

// Nop classifies everything as plain text. Used when no classifier is
// wired in.
func Nop() Classifier {
	return Func(func(string) Category { return CategoryText })
}
