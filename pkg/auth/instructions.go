package auth

import (
	"fmt"
	"io"
	"strings"
)

// WriteTokenGuide prints the steps for copying a bearer token out of a
// normal browser session, for machines where headless capture is blocked
func WriteTokenGuide(w io.Writer, pageURL, apiDomain string) {
	rule := strings.Repeat("=", 72)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "MANUAL BEARER TOKEN GUIDE")
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "STEP 1: Open the results page in your browser")
	fmt.Fprintf(w, "   - Go to %s\n", pageURL)
	fmt.Fprintln(w, "   - Wait until fixtures or results are visible")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "STEP 2: Open Developer Tools")
	fmt.Fprintln(w, "   - Chrome/Edge/Firefox: F12 or Ctrl+Shift+I (Cmd+Option+I on Mac)")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "STEP 3: Find an API request")
	fmt.Fprintln(w, "   - Open the Network tab and refresh the page")
	fmt.Fprintf(w, "   - Filter by %q and click any request\n", apiDomain)
	fmt.Fprintln(w, "   - Under Request Headers copy the value of 'Authorization'")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "STEP 4: Hand it to bhascraper")
	fmt.Fprintf(w, "   export %s='Bearer eyJ...'\n", TokenEnvVar)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "NOTES:")
	fmt.Fprintln(w, "   - Tokens expire after a short while; repeat when requests return 401")
	fmt.Fprintln(w, "   - The 'Bearer ' prefix is optional")
	fmt.Fprintln(w, rule)
}
