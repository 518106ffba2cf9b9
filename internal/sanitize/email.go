package sanitize

import "strings"

type aliasRule struct {
	removeDots bool
	separator  string
	canonical  string
}

var providerRules = map[string]aliasRule{
	"gmail.com":      {removeDots: true, separator: "+", canonical: "gmail.com"},
	"googlemail.com": {removeDots: true, separator: "+", canonical: "gmail.com"},
	"outlook.com":    {separator: "+"},
	"hotmail.com":    {separator: "+"},
	"live.com":       {separator: "+"},
	"yahoo.com":      {separator: "-"},
	"icloud.com":     {separator: "+"},
	"me.com":         {separator: "+"},
	"mac.com":        {separator: "+"},
}

// Email trims and lowercases an address and folds well-known provider
// aliases (gmail dots, plus/minus sub-addressing) into the mailbox they
// deliver to. Input without exactly one "@" is returned trimmed and
// lowercased.
func Email(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if strings.Count(s, "@") != 1 {
		return s
	}
	local, domain, _ := strings.Cut(s, "@")
	if local == "" || domain == "" {
		return s
	}

	rule, ok := providerRules[domain]
	if !ok {
		return s
	}
	if rule.separator != "" {
		if head, _, found := strings.Cut(local, rule.separator); found && head != "" {
			local = head
		}
	}
	if rule.removeDots {
		local = strings.ReplaceAll(local, ".", "")
	}
	if rule.canonical != "" {
		domain = rule.canonical
	}
	if local == "" {
		return s
	}
	return local + "@" + domain
}
