// Package joke is the norris workload: an HTTP service answering each
// request with a random joke from the public joke API.
package joke
