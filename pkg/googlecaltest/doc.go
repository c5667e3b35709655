// Package googlecaltest provides mock Google Calendar and OAuth servers for
// testing.
//
// The calendar mock implements the slice of the Calendar API v3 Events
// endpoints that event creation needs, so tests run without credentials or
// network access.
//
// # Supported Operations
//
//   - Insert Event: POST /calendars/{calendarId}/events
//   - Get Event: GET /calendars/{calendarId}/events/{eventId}
//
// # Basic Usage
//
//	server := googlecaltest.NewServer()
//	defer server.Close()
//
//	svc, err := calendar.NewService(ctx,
//	    option.WithHTTPClient(&http.Client{}),
//	    option.WithEndpoint(server.URL))
//
//	created, err := svc.Events.Insert("primary", event).Do()
//
// # Test Helpers
//
//	// Make the next insert fail with a Calendar API error
//	server.FailNext(http.StatusForbidden, "Insufficient Permission")
//
//	// Inspect what reached the wire
//	n := server.InsertCount()
//	body := server.LastRequestBody()
//
//	// Clear all data between tests
//	server.Reset()
//
// # Token Server
//
// TokenServer stands in for the OAuth token endpoint. Point an oauth2.Config
// at TokenServer.Endpoint() and it answers authorization_code and
// refresh_token grants, counting each so tests can assert how often a
// credential provider refreshed or re-authorized.
package googlecaltest
