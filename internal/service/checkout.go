package service

import (
	"net/url"
	"strings"
)

const (
	whatsAppBaseURL  = "https://wa.me/"
	instagramBaseURL = "https://www.instagram.com/"
)

// CheckoutLinks builds the outbound chat links used to place an order
type CheckoutLinks struct {
	Phone           string
	InstagramHandle string
}

// WhatsApp returns a chat link to the store phone with text prefilled.
// An empty text yields the plain chat link.
func (c CheckoutLinks) WhatsApp(text string) string {
	link := whatsAppBaseURL + c.Phone
	if text == "" {
		return link
	}
	return link + "?" + url.Values{"text": {text}}.Encode()
}

// Instagram returns the store profile link
func (c CheckoutLinks) Instagram() string {
	return instagramBaseURL + strings.TrimPrefix(c.InstagramHandle, "@")
}

// ContactLinks are the static links of the contact page
type ContactLinks struct {
	WhatsAppURL  string `json:"whatsapp_url"`
	InstagramURL string `json:"instagram_url"`
}

// Contact returns the links shown on the contact page
func (c CheckoutLinks) Contact() ContactLinks {
	return ContactLinks{
		WhatsAppURL:  c.WhatsApp(""),
		InstagramURL: c.Instagram(),
	}
}
