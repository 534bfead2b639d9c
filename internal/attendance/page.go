package attendance

const (
	// MembersPerPage is the number of members rendered per page.
	MembersPerPage = 20
	// MaxMemberPages caps the pages sent for one listing; Discord allows ten embeds per message.
	MaxMemberPages = 10
)

// Paginate splits members into pages of size, keeping at most maxPages.
// truncated reports whether members were dropped by the cap.
func Paginate(members []Member, size, maxPages int) (pages [][]Member, truncated bool) {
	if size <= 0 {
		size = MembersPerPage
	}
	for start := 0; start < len(members); start += size {
		if maxPages > 0 && len(pages) == maxPages {
			return pages, true
		}
		end := start + size
		if end > len(members) {
			end = len(members)
		}
		pages = append(pages, members[start:end])
	}
	return pages, false
}
