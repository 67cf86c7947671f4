package muxserve

// ResponseText is written verbatim to every client that completes a request.
// The bare "\n" after the Content-Length header is part of the wire format.
const ResponseText = "HTTP/1.1 200 OK\r\n" +
	"Content-Length: 12\n" +
	"Connection: close\r\n\r\n" +
	"Hello world!"

// response is shared by every writeState and must never be modified.
var response = []byte(ResponseText)

// headerTerminator ends a request.
var headerTerminator = []byte("\r\n\r\n")
