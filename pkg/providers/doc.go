/*
Package providers holds the HTTP clients for the three external services
a generation depends on, plus the pure text operations layered on top of
them.

SearchClient wraps the search & scrape provider: one web search per
generation followed by a scrape of every hit, normalized into SerpEntry
values (headings, cleaned text, word count). Scrape failures are
recorded per entry and never abort the run.

LLMClient wraps the chat completion API. The higher-level operations
(structure analysis, block enrichment, writing, link insertion, review,
SEO metadata) each pin their own temperature and token budget, parse the
model's output through a fence-tolerant JSON extractor and validate the
result before the pipeline trusts it. Token usage accumulates per client
so a job can report its own consumption.

VectorClient answers research questions against the owner's vector
knowledge base: the question is normalized (stop words and short tokens
dropped), embedded through the chat provider's embeddings endpoint, and
matched via a stored procedure. Hits below the 0.55 similarity floor are
discarded; no hit at all is a valid "nothing relevant" answer, not an
error.

Clients are constructed per job from the owner's decrypted credentials
and are never shared across jobs.

The helpers that never touch the network (link target assignment,
markdown link extraction, forced link appending, HTML content
extraction) are deterministic and covered directly by tests.
*/
package providers
