/*
Package auth identifies the users of the gateway.

The user of a request is determined by an ordered chain of strategies.
The first strategy that finds a user wins:

  - the query strategy reads the user id from the PP_UID query parameter,
  - the uid-in-host strategy reads it from the first label of hosts like
    user42.gw.example.org,
  - the destination strategy reads it from the last segment of the first
    label of hosts like https---prod--example--com---user42.gw.example.org,
    where the segments are separated by triple dashes, and double dashes
    in the scheme and the destination encode dots,
  - the basic strategy accepts HTTP Basic credentials for users whose token
    is stored as an htpasswd hash.

The token of the user is taken from the PP_TOKEN query parameter. Users
configured without a token don't need one.

When no users are configured at all, every request is served with the
Unrestricted user.
*/
package auth
