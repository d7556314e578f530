// Package gateway exposes speech recognition over HTTP.
//
// Service holds the process-lifetime inference context: the audio
// normalizer, the acoustic model, and the vocabulary. It is built once and
// handed to the fiber server, which serves GET /ping and POST /asr. Client is
// the multipart caller the batch transcriber uses against that endpoint.
//
// Error kinds map onto HTTP statuses: a missing upload is 400, undecodable
// audio 415, a resampling failure 422, and a model failure 500.
package gateway
