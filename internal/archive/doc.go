// Package archive defines the domain types and collaborator interfaces shared
// by the debouncer, the Wayback client, the HTTP gateway and the notification
// publishers.
package archive
