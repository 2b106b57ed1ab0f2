package common

// AdminGroup is the wiki group name that grants administrator rights.
// Membership in any other group has no effect on permissions.
const AdminGroup = "sysop"

// DemoUsername is the shared demonstration account. Mutations from this
// identity are refused so classroom demos cannot alter the live graph.
const DemoUsername = "WikicampusDemo"

// SuggestedByProperty is the qualifier property stamped on claims created
// through the included-item path, carrying the suggesting student's own
// entity id as provenance.
const SuggestedByProperty = "P2017"

// SessionTokenHeaderName is the HTTP header carrying the session token on
// authenticated requests.
const SessionTokenHeaderName = "Authorization"
