package extract

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// threeEntryPage is a listing page with three entries, newest first. The
// first has badges and a comment, the second a plain detail row, the third
// only a single trailing row.
const threeEntryPage = `
<html><body><table><tbody>
    <tr>
        <td class="tw-py-5 tw-pr-3"><div class="tw-font-medium">Test University</div></td>
        <td class="tw-px-3 tw-py-5"><div><span>Software Engineering</span><span class="tw-text-gray-500">MS</span></div></td>
        <td class="tw-px-3 tw-py-5">September 23, 2025</td>
        <td class="tw-px-3 tw-py-5"><div class="tw-bg-green-50">Accepted on 23 Sep</div></td>
        <td class="tw-relative tw-py-5"><a href="/result/103">Note</a></td>
    </tr>
    <tr class="tw-border-none">
        <td colspan="3" class="tw-pt-2 tw-pb-5">
            <div class="tw-gap-2 tw-flex">
                <div class="tw-inline-flex tw-items-center">American</div>
                <div class="tw-inline-flex tw-items-center">GPA 4.00</div>
                <div class="tw-inline-flex tw-items-center">GRE 330</div>
                <div class="tw-inline-flex tw-items-center">GRE V 165</div>
                <div class="tw-inline-flex tw-items-center">GRE AW 4.5</div>
                <div class="tw-inline-flex tw-items-center">Fall 2026</div>
            </div>
        </td>
    </tr>
    <tr class="tw-border-none">
        <td colspan="100%" class="tw-pb-5"><p>This is a new comment.</p></td>
    </tr>

    <tr>
        <td class="tw-py-5 tw-pr-3"><div class="tw-font-medium">Another University</div></td>
        <td class="tw-px-3 tw-py-5"><div><span>Mechanical Engineering</span><span class="tw-text-gray-500">PhD</span></div></td>
        <td class="tw-px-3 tw-py-5">September 22, 2025</td>
        <td class="tw-px-3 tw-py-5"><div class="tw-bg-red-50">Rejected on 22 Sep</div></td>
        <td class="tw-relative tw-py-5"><a href="/result/101">Note</a></td>
    </tr>
    <tr class="tw-border-none"><td colspan="3"><div>Details...</div></td></tr>
    <tr class="tw-border-none"><td colspan="100%"><p>This is a duplicate comment.</p></td></tr>

    <tr>
        <td class="tw-py-5 tw-pr-3"><div class="tw-font-medium">Older University</div></td>
        <td class="tw-px-3 tw-py-5"><div><span>Electrical Engineering</span></div></td>
        <td class="tw-px-3 tw-py-5">21 Sep</td>
        <td class="tw-px-3 tw-py-5"><div class="tw-bg-blue-50">Interview</div></td>
        <td class="tw-relative tw-py-5"><a href="/result/100">Note</a></td>
    </tr>
    <tr class="tw-border-none"><td colspan="100%"><p>This comment should not be scraped.</p></td></tr>
</tbody></table></body></html>
`

func mustParse(t *testing.T, html string) []Entry {
	t.Helper()
	entries, err := ParsePage(strings.NewReader(html))
	require.NoError(t, err)
	return entries
}

func baseURL(t *testing.T) *url.URL {
	t.Helper()
	u, err := url.Parse("https://www.thegradcafe.com/")
	require.NoError(t, err)
	return u
}
