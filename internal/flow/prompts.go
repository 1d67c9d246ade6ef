// internal/flow/prompts.go
package flow

import (
	"fmt"
	"strings"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/waypoint/api/schemas"
)

func homepagePrompt(target string, candidates []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Given the website name '%s', pick the URL from this list that is most likely its official homepage.\n", target)
	b.WriteString("Answer with a JSON object and nothing else.\n\n")
	b.WriteString("Example output:\n{\"url\": \"https://www.example.com\"}\n\nSearch results:\n")
	for i, c := range candidates {
		fmt.Fprintf(&b, "%d. %s\n", i+1, c)
	}
	return b.String()
}

func loginControlPrompt(elements []schemas.InteractiveElement) string {
	var b strings.Builder
	b.WriteString("Among the following page elements, find the LOGIN or SIGN IN button or link.\n")
	b.WriteString("Return:\n")
	b.WriteString("- selector: a CSS selector for the element (prefer its id, then its class, then the provided selector)\n")
	b.WriteString("- href: its href attribute if any (it may be empty, '#', 'javascript:void(0)' or a real URL)\n")
	b.WriteString("- text: its visible text\n\n")
	b.WriteString("Example output:\n{\"selector\": \"#login-btn\", \"href\": \"https://example.com/login\", \"text\": \"Log in\"}\n")
	b.WriteString("or\n{\"selector\": \".js-login\", \"href\": \"#\", \"text\": \"Sign in\"}\n\n")
	b.WriteString("Elements:\n")
	writeElements(&b, elements)
	return b.String()
}

func loginPagePrompt(page *schemas.PageSummary) string {
	var b strings.Builder
	b.WriteString("Does this page look like a login page (a form with a username or email field and a password field)?\n")
	b.WriteString("If it does, also give CSS selectors for the username field, the password field and the submit button.\n")
	b.WriteString("Answer with a JSON object and nothing else.\n\n")
	b.WriteString("Example output:\n{\"is_page_reached\": true, \"username_selector\": \"#email\", \"password_selector\": \"#password\", \"submit_selector\": \"button[type=\\\"submit\\\"]\"}\n\n")
	b.WriteString("Page:\n")
	writePage(&b, page)
	return b.String()
}

func changeEmailControlPrompt(hint string, elements []schemas.InteractiveElement) string {
	var b strings.Builder
	b.WriteString("The user is logged in and wants to change the email address of their account.\n")
	b.WriteString("Among the following page elements, find the one leading toward the account, profile or settings section where the email can be changed.\n")
	if hint != "" {
		fmt.Fprintf(&b, "A previous look at this page suggested: '%s'.\n", hint)
	}
	b.WriteString("Return:\n")
	b.WriteString("- selector: a CSS selector for the element (prefer its id, then its class, then the provided selector)\n")
	b.WriteString("- href: its href attribute if any\n")
	b.WriteString("- text: its visible text\n\n")
	b.WriteString("Example output:\n{\"selector\": \"#account-menu\", \"href\": \"/settings/account\", \"text\": \"Account settings\"}\n\n")
	b.WriteString("Elements:\n")
	writeElements(&b, elements)
	return b.String()
}

func changeEmailSectionPrompt(page *schemas.PageSummary) string {
	var b strings.Builder
	b.WriteString("Does this page show a section or form where the user can change the email address of their account?\n")
	b.WriteString("If it does not, give the visible text of the link or button most likely to lead there as next_action_location.\n")
	b.WriteString("Answer with a JSON object and nothing else.\n\n")
	b.WriteString("Example output:\n{\"is_page_reached\": false, \"next_action_location\": \"Account settings\"}\n\n")
	b.WriteString("Page:\n")
	writePage(&b, page)
	return b.String()
}

func writeElements(b *strings.Builder, elements []schemas.InteractiveElement) {
	for _, el := range elements {
		line, err := json.MarshalToString(el)
		if err != nil {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
}

func writePage(b *strings.Builder, page *schemas.PageSummary) {
	if page == nil {
		b.WriteString("(empty)\n")
		return
	}
	out, err := json.MarshalIndent(page, "", "  ")
	if err != nil {
		fmt.Fprintf(b, "url: %s\ntitle: %s\n", page.URL, page.Title)
		return
	}
	b.Write(out)
	b.WriteByte('\n')
}
